package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jimezsa/jobscrape/internal/backoff"
	"github.com/jimezsa/jobscrape/internal/browser"
	"github.com/jimezsa/jobscrape/internal/config"
	"github.com/jimezsa/jobscrape/internal/export"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/network"
	"github.com/jimezsa/jobscrape/internal/pipeline"
	"github.com/jimezsa/jobscrape/internal/roles"
	"github.com/jimezsa/jobscrape/internal/scraper"
	"github.com/jimezsa/jobscrape/internal/sessionlog"
	"github.com/jimezsa/jobscrape/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	proxyBanDuration = 5 * time.Minute
	requestTimeout   = 30 * time.Second
)

type RoleSource struct {
	Group     string `help:"Only run roles of this group from the roles file."`
	RolesFile string `help:"Path to the roles file (YAML or JSON)." default:"${roles_file}"`
	Role      string `help:"Comma-separated roles; overrides the roles file."`
}

type RunOptions struct {
	RoleSource
	Mode         string `help:"Run mode from config (extractors and handlers)." default:"csv" env:"JOBSCRAPE_MODE"`
	MaxPages     int    `help:"Maximum listing pages per role and location." default:"${max_pages}"`
	PerPageLimit int    `help:"Maximum items opened per listing page (0 = all)." default:"${per_page_limit}"`
	Locations    string `help:"Comma-separated locations; results elsewhere are dropped." default:"${locations}"`
	Browser      string `help:"Browser: playwright or static." enum:"playwright,static" default:"${browser}"`
	Headless     bool   `help:"Run the browser without a window." negatable:"" default:"${headless}"`
	Proxies      string `help:"Comma-separated proxy URLs (static browser)."`
	MetricsFile  string `help:"Write Prometheus metrics in textfile format to this path."`
	StatsOut     string `help:"Write run statistics as JSON to this path."`
}

type RunCmd struct {
	RunOptions
}

func (r *RunCmd) Run(ctx *Context) error {
	_, err := runOnce(ctx.runContext(), ctx, r.RunOptions)
	return err
}

// plan is a resolved run: everything but the browser, which is only
// started once the plan is known to be valid.
type plan struct {
	mode         string
	group        string
	roles        []string
	profiles     []scraper.Profile
	handlers     []storage.Handler
	destinations map[string]string
	locations    []string
	scraperOpts  scraper.Options
	browserKind  string
	headless     bool
	proxies      []string
	cookies      []browser.Cookie
}

func runOnce(ctx context.Context, c *Context, opts RunOptions) (*models.Statistics, error) {
	p, err := resolvePlan(c, opts)
	if err != nil {
		return nil, err
	}

	extractors, closeBrowser, err := openExtractors(c, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := closeBrowser(); err != nil {
			c.Logger.Warn().Err(err).Msg("browser close failed")
		}
	}()

	sessions, closeSessions := openSessions(ctx, c)
	defer func() {
		if err := closeSessions(); err != nil {
			c.Logger.Warn().Err(err).Msg("session log close failed")
		}
	}()

	return executePlan(ctx, c, p, extractors, sessions, opts)
}

func resolvePlan(c *Context, opts RunOptions) (*plan, error) {
	cfg := c.Config

	modeName := strings.ToLower(strings.TrimSpace(opts.Mode))
	mode, err := cfg.LookupMode(modeName)
	if err != nil {
		return nil, configError(err)
	}

	roleList, err := resolveRoles(cfg, opts.RoleSource)
	if err != nil {
		return nil, err
	}

	p := &plan{
		mode:         modeName,
		group:        strings.TrimSpace(opts.Group),
		roles:        roleList,
		destinations: cfg.ResolvedDestinations(),
		locations:    config.SplitCSV(opts.Locations),
		browserKind:  strings.ToLower(strings.TrimSpace(opts.Browser)),
		headless:     opts.Headless,
		scraperOpts: scraper.Options{
			MaxPages:     opts.MaxPages,
			PerPageLimit: opts.PerPageLimit,
			MinDelay:     config.Seconds(cfg.MinDelay),
			MaxDelay:     config.Seconds(cfg.MaxDelay),
			WaitTimeout:  config.Seconds(cfg.WaitTimeout),
			Retry: backoff.Policy{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  config.Seconds(cfg.Retry.BaseDelay),
				MaxDelay:   config.Seconds(cfg.Retry.MaxDelay),
				Jitter:     time.Second,
			},
			ParallelLocations: cfg.ParallelLocations,
		},
	}
	if p.browserKind == "" {
		p.browserKind = cfg.Browser
	}
	if p.browserKind != config.BrowserPlaywright && p.browserKind != config.BrowserStatic {
		return nil, configErrorf("unknown browser %q", p.browserKind)
	}

	storageOpts := storage.Options{BatchSize: cfg.BatchSize, Table: cfg.Table, RedisKey: cfg.RedisKey}
	for _, name := range mode.Handlers {
		handler, err := storage.New(name, storageOpts, c.Logger)
		if err != nil {
			return nil, configError(err)
		}
		if p.destinations[handler.Name()] == "" {
			return nil, configErrorf("mode %q: no destination configured for handler %q", modeName, handler.Name())
		}
		p.handlers = append(p.handlers, handler)
	}

	for _, name := range mode.Extractors {
		profile, err := scraper.LookupProfile(name)
		if err != nil {
			return nil, configError(err)
		}
		p.profiles = append(p.profiles, profile)
	}

	p.cookies, err = browser.LoadCookies(cfg.CookiesFile)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	p.proxies, err = config.LoadProxies(opts.Proxies)
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}

	return p, nil
}

func resolveRoles(cfg config.Config, src RoleSource) ([]string, error) {
	if strings.TrimSpace(src.Role) != "" {
		list := roles.SplitCSV(src.Role)
		if len(list) == 0 {
			return nil, configError(roles.ErrEmptyQueue)
		}
		return list, nil
	}

	path := strings.TrimSpace(src.RolesFile)
	if path == "" {
		path = strings.TrimSpace(cfg.RolesFile)
	}
	if path == "" {
		defaultPath, err := config.RolesPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	queue, err := roles.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, configErrorf("roles file %s not found; run `jobscrape config init` or pass --role", path)
		}
		return nil, err
	}

	list, err := queue.Select(src.Group)
	if err != nil {
		return nil, configError(err)
	}
	if len(list) == 0 {
		return nil, configError(fmt.Errorf("%w: %s", roles.ErrEmptyQueue, path))
	}
	return list, nil
}

func openExtractors(c *Context, p *plan) ([]scraper.Extractor, func() error, error) {
	extractors := make([]scraper.Extractor, 0, len(p.profiles))

	if p.browserKind == config.BrowserStatic {
		rotator, err := network.NewRotator(p.proxies, proxyBanDuration)
		if err != nil {
			return nil, nil, configError(fmt.Errorf("invalid proxy: %w", err))
		}
		for _, profile := range p.profiles {
			b := browser.NewStatic(browser.StaticOptions{
				Rotator: rotator,
				Timeout: requestTimeout,
				Headers: profile.Headers,
			}, c.Logger)
			extractors = append(extractors, scraper.NewListing(profile, b, p.scraperOpts, c.Logger))
		}
		return extractors, func() error { return nil }, nil
	}

	if len(p.proxies) > 0 {
		c.Logger.Warn().Int("proxies", len(p.proxies)).Msg("proxies are only used by the static browser")
	}
	b, err := browser.NewPlaywright(browser.PlaywrightOptions{
		Headless:        p.headless,
		NavTimeout:      requestTimeout,
		UserAgent:       network.DefaultUserAgents[0],
		Locale:          "en-US",
		Cookies:         p.cookies,
		ScrollAfterLoad: true,
	}, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	for _, profile := range p.profiles {
		extractors = append(extractors, scraper.NewListing(profile, b, p.scraperOpts, c.Logger))
	}
	return extractors, b.Close, nil
}

// openSessions builds the configured session loggers. A database that
// cannot be reached is logged and left out.
func openSessions(ctx context.Context, c *Context) (sessionlog.Logger, func() error) {
	var loggers sessionlog.Multi
	closer := func() error { return nil }

	if path := strings.TrimSpace(c.Config.SessionLog); path != "" {
		loggers = append(loggers, sessionlog.NewFile(path))
	}
	if dsn := strings.TrimSpace(os.ExpandEnv(c.Config.SessionLogDSN)); dsn != "" {
		db, err := sessionlog.OpenSQL(ctx, dsn)
		if err != nil {
			c.Logger.Warn().Err(err).Msg("session log database unavailable")
		} else {
			loggers = append(loggers, db)
			closer = db.Close
		}
	}

	if len(loggers) == 0 {
		return sessionlog.Nop{}, closer
	}
	return loggers, closer
}

func executePlan(ctx context.Context, c *Context, p *plan, extractors []scraper.Extractor, sessions sessionlog.Logger, opts RunOptions) (*models.Statistics, error) {
	reg := prometheus.NewRegistry()
	pipe := pipeline.New(pipeline.Options{
		Locations:        p.locations,
		RoleDelay:        config.Seconds(c.Config.RoleDelay),
		ParallelHandlers: c.Config.ParallelHandlers,
		Mode:             p.mode,
		Group:            p.group,
		Metrics:          pipeline.NewMetrics(reg),
		Sessions:         sessions,
		OnRoleDone:       func(rs models.RoleStats) { reportRole(c, rs) },
	}, c.Logger)

	stats, runErr := pipe.Run(ctx, p.roles, extractors, p.handlers, p.destinations)
	if stats == nil {
		return nil, runErr
	}

	if err := writeOutputs(c, stats, reg, opts); err != nil {
		if runErr != nil {
			return stats, errors.Join(runErr, err)
		}
		return stats, err
	}
	return stats, runErr
}

func reportRole(c *Context, rs models.RoleStats) {
	if rs.Success {
		if !c.JSONOutput {
			c.UI.Successf("%s: %d records", rs.Role, rs.Records)
		}
		return
	}
	reason := "no records"
	if len(rs.Errors) > 0 {
		reason = strings.Join(rs.Errors, "; ")
	}
	c.UI.Warnf("%s: failed (%s)", rs.Role, reason)
}

func writeOutputs(c *Context, stats *models.Statistics, reg *prometheus.Registry, opts RunOptions) error {
	format := export.FormatTable
	if c.JSONOutput {
		format = export.FormatJSON
	}
	if err := export.WriteStats(c.Out, stats, format, export.WriteOptions{ColorEnabled: c.UI.ColorEnabled}); err != nil {
		return err
	}

	if path := strings.TrimSpace(opts.StatsOut); path != "" {
		if err := writeStatsFile(path, stats); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
	}

	if path := strings.TrimSpace(opts.MetricsFile); path != "" {
		if err := ensureParent(path); err != nil {
			return err
		}
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func writeStatsFile(path string, stats *models.Statistics) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteStats(file, stats, export.FormatJSON, export.WriteOptions{}); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func configError(err error) error {
	return &pipeline.ConfigurationError{Reason: err.Error()}
}

func configErrorf(format string, args ...any) error {
	return &pipeline.ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jimezsa/jobscrape/internal/backoff"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/scraper"
	"github.com/jimezsa/jobscrape/internal/seen"
	"github.com/jimezsa/jobscrape/internal/sessionlog"
	"github.com/jimezsa/jobscrape/internal/storage"
	"github.com/rs/zerolog"
)

type Options struct {
	Locations        []string
	RoleDelay        time.Duration
	ParallelHandlers bool

	Mode  string
	Group string

	Metrics  *Metrics
	Sessions sessionlog.Logger
	// OnRoleDone is called after each role's statistics are recorded.
	OnRoleDone func(models.RoleStats)
}

type Pipeline struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.RWMutex
	stats *models.Statistics

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(opts Options, logger zerolog.Logger) *Pipeline {
	if opts.Sessions == nil {
		opts.Sessions = sessionlog.Nop{}
	}
	return &Pipeline{
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
		stats:  &models.Statistics{},
		now:    time.Now,
		sleep:  backoff.Sleep,
	}
}

func (p *Pipeline) Snapshot() *models.Statistics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats.Clone()
}

// Run processes roles in order. Configuration problems are reported as a
// *ConfigurationError before any role starts. When ctx is cancelled between
// roles the statistics gathered so far are returned, marked Cancelled, along
// with the context error.
func (p *Pipeline) Run(ctx context.Context, roles []string, extractors []scraper.Extractor, handlers []storage.Handler, destinations map[string]string) (*models.Statistics, error) {
	if err := validate(extractors, handlers, destinations); err != nil {
		return nil, err
	}

	started := p.now()
	p.mu.Lock()
	p.stats = &models.Statistics{
		RunID:      sessionlog.NewRunID(),
		TotalRoles: len(roles),
		Roles:      []models.RoleStats{},
		StartedAt:  started,
	}
	runID := p.stats.RunID
	p.mu.Unlock()

	logger := p.logger.With().Str("run_id", runID).Logger()
	session := sessionlog.Run{ID: runID, Mode: p.opts.Mode, Group: p.opts.Group, StartedAt: started}
	if err := p.opts.Sessions.Start(ctx, session); err != nil {
		logger.Warn().Err(err).Msg("session log start failed")
	}
	logger.Info().Int("roles", len(roles)).Int("extractors", len(extractors)).Int("handlers", len(handlers)).Msg("run started")

	var runErr error
	for i, role := range roles {
		if i > 0 && p.opts.RoleDelay > 0 {
			if err := p.sleep(ctx, p.opts.RoleDelay); err != nil {
				runErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		rs := p.runRole(ctx, logger, role, extractors, handlers, destinations)
		p.record(rs)
	}

	if runErr == nil {
		runErr = ctx.Err()
	}

	finished := p.now()
	p.mu.Lock()
	p.stats.FinishedAt = finished
	p.stats.Duration = finished.Sub(started)
	p.stats.Cancelled = runErr != nil
	out := p.stats.Clone()
	p.mu.Unlock()

	session.Apply(out)
	if err := p.opts.Sessions.Finish(context.WithoutCancel(ctx), session); err != nil {
		logger.Warn().Err(err).Msg("session log finish failed")
	}

	event := logger.Info()
	if runErr != nil {
		event = logger.Warn().Err(runErr)
	}
	event.
		Int("successful_roles", out.SuccessfulRoles).
		Int("failed_roles", out.FailedRoles).
		Int("records", out.TotalRecords).
		Dur("elapsed", out.Duration).
		Bool("cancelled", out.Cancelled).
		Msg("run finished")

	return out, runErr
}

func validate(extractors []scraper.Extractor, handlers []storage.Handler, destinations map[string]string) error {
	if len(extractors) == 0 {
		return configErrorf("no extractors configured")
	}
	if len(handlers) == 0 {
		return configErrorf("no storage handlers configured")
	}
	for _, ex := range extractors {
		if ex == nil {
			return configErrorf("nil extractor")
		}
	}
	var missing []string
	for _, h := range handlers {
		if h == nil {
			return configErrorf("nil storage handler")
		}
		if strings.TrimSpace(destinations[h.Name()]) == "" {
			missing = append(missing, h.Name())
		}
	}
	if len(missing) > 0 {
		return configErrorf("no destination for handler(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

func (p *Pipeline) runRole(ctx context.Context, logger zerolog.Logger, role string, extractors []scraper.Extractor, handlers []storage.Handler, destinations map[string]string) models.RoleStats {
	started := p.now()
	logger = logger.With().Str("role", role).Logger()
	rs := models.RoleStats{Role: role, ExtractorRecords: map[string]int{}}

	var union []models.Record
	for _, ex := range extractors {
		records, err := p.extract(ctx, ex, role)
		if err != nil {
			rs.Errors = append(rs.Errors, fmt.Sprintf("%s: %v", ex.Name(), err))
			logger.Error().Err(err).Str("extractor", ex.Name()).Msg("extractor failed")
			if m := p.opts.Metrics; m != nil {
				m.ExtractorErrors.WithLabelValues(ex.Name()).Inc()
			}
			continue
		}
		rs.ExtractorRecords[ex.Name()] += len(records)
		if m := p.opts.Metrics; m != nil {
			m.Extracted.WithLabelValues(ex.Name()).Add(float64(len(records)))
		}
		logger.Info().Str("extractor", ex.Name()).Int("records", len(records)).Msg("extraction done")
		union = append(union, records...)
	}
	union = unionByURL(union)
	rs.Records = len(union)

	switch {
	case ctx.Err() != nil:
		rs.Skipped = true
		rs.Errors = append(rs.Errors, fmt.Sprintf("persistence skipped: %v", ctx.Err()))
	case len(union) == 0:
		rs.Skipped = true
		logger.Warn().Msg("no records extracted, persistence skipped")
	default:
		rs.StorageResults = p.persist(ctx, logger, union, handlers, destinations)
		for _, res := range rs.StorageResults {
			if res.Success {
				rs.Success = true
			} else if res.Error != "" {
				rs.Errors = append(rs.Errors, fmt.Sprintf("%s: %s", res.Handler, res.Error))
			}
		}
	}

	rs.Duration = p.now().Sub(started)
	if m := p.opts.Metrics; m != nil {
		m.RoleDuration.Observe(rs.Duration.Seconds())
	}
	return rs
}

func (p *Pipeline) extract(ctx context.Context, ex scraper.Extractor, role string) (records []models.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, &panicError{value: r}
		}
	}()
	return ex.Extract(ctx, role, p.opts.Locations)
}

func (p *Pipeline) persist(ctx context.Context, logger zerolog.Logger, records []models.Record, handlers []storage.Handler, destinations map[string]string) []models.StorageResult {
	results := make([]models.StorageResult, len(handlers))
	if p.opts.ParallelHandlers && len(handlers) > 1 {
		var wg sync.WaitGroup
		for i, h := range handlers {
			wg.Add(1)
			go func(i int, h storage.Handler) {
				defer wg.Done()
				results[i] = p.save(ctx, logger, h, records, destinations[h.Name()])
			}(i, h)
		}
		wg.Wait()
		return results
	}
	for i, h := range handlers {
		results[i] = p.save(ctx, logger, h, records, destinations[h.Name()])
	}
	return results
}

func (p *Pipeline) save(ctx context.Context, logger zerolog.Logger, h storage.Handler, records []models.Record, destination string) (res models.StorageResult) {
	res = models.StorageResult{Handler: h.Name(), Destination: redact(destination)}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = (&panicError{value: r}).Error()
		}
		p.observeSave(logger, res)
	}()

	outcome, err := h.Save(ctx, records, destination)
	res.Outcome = outcome
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = outcome.Success
	if !res.Success && res.Error == "" {
		res.Error = fmt.Sprintf("%d of %d records failed", outcome.Errors, len(records))
	}
	return res
}

func (p *Pipeline) observeSave(logger zerolog.Logger, res models.StorageResult) {
	if res.Success {
		logger.Info().
			Str("handler", res.Handler).
			Int("inserted", res.Outcome.Inserted).
			Int("duplicates", res.Outcome.Duplicates).
			Int("errors", res.Outcome.Errors).
			Msg("records persisted")
	} else {
		logger.Error().Str("handler", res.Handler).Str("destination", res.Destination).Str("error", res.Error).Msg("storage failed")
	}

	m := p.opts.Metrics
	if m == nil {
		return
	}
	m.Saved.WithLabelValues(res.Handler, "inserted").Add(float64(res.Outcome.Inserted))
	m.Saved.WithLabelValues(res.Handler, "duplicate").Add(float64(res.Outcome.Duplicates))
	m.Saved.WithLabelValues(res.Handler, "error").Add(float64(res.Outcome.Errors))
	if !res.Success {
		m.HandlerErrors.WithLabelValues(res.Handler).Inc()
	}
}

func (p *Pipeline) record(rs models.RoleStats) {
	p.mu.Lock()
	p.stats.Roles = append(p.stats.Roles, rs)
	if rs.Success {
		p.stats.SuccessfulRoles++
	} else {
		p.stats.FailedRoles++
	}
	p.stats.TotalRecords += rs.Records
	p.mu.Unlock()

	if m := p.opts.Metrics; m != nil {
		status := "success"
		if !rs.Success {
			status = "failed"
		}
		m.Roles.WithLabelValues(status).Inc()
	}
	if p.opts.OnRoleDone != nil {
		p.opts.OnRoleDone(rs)
	}
}

func unionByURL(records []models.Record) []models.Record {
	if len(records) < 2 {
		return records
	}
	keys := make(map[string]struct{}, len(records))
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if key, ok := seen.Key(rec.JobURL); ok {
			if _, dup := keys[key]; dup {
				continue
			}
			keys[key] = struct{}{}
		}
		out = append(out, rec)
	}
	return out
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

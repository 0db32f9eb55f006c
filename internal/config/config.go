package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	DirName         = "jobscrape"
	ConfigFileName  = "config.json"
	ProxiesFileName = "proxies.txt"
	RolesFileName   = "roles.yaml"
	CookiesFileName = "cookies.json"
)

const (
	BrowserPlaywright = "playwright"
	BrowserStatic     = "static"
)

type RetryConfig struct {
	MaxRetries int     `json:"max_retries"`
	BaseDelay  float64 `json:"base_delay"`
	MaxDelay   float64 `json:"max_delay"`
}

type Mode struct {
	Extractors []string `json:"extractors"`
	Handlers   []string `json:"handlers"`
}

type Config struct {
	MaxPages          int               `json:"max_pages"`
	PerPageLimit      int               `json:"per_page_limit"`
	MinDelay          float64           `json:"min_delay"`
	MaxDelay          float64           `json:"max_delay"`
	RoleDelay         float64           `json:"role_delay"`
	WaitTimeout       float64           `json:"wait_timeout"`
	Locations         []string          `json:"locations"`
	Destinations      map[string]string `json:"destinations"`
	RolesFile         string            `json:"roles_file"`
	Browser           string            `json:"browser"`
	Headless          bool              `json:"headless"`
	CookiesFile       string            `json:"cookies_file"`
	Retry             RetryConfig       `json:"retry"`
	BatchSize         int               `json:"batch_size"`
	Table             string            `json:"table"`
	RedisKey          string            `json:"redis_key"`
	SessionLog        string            `json:"session_log"`
	SessionLogDSN     string            `json:"session_log_dsn"`
	ParallelHandlers  bool              `json:"parallel_handlers"`
	ParallelLocations bool              `json:"parallel_locations"`
	Modes             map[string]Mode   `json:"modes"`
}

func DefaultConfig() Config {
	return Config{
		MaxPages:     envInt("JOBSCRAPE_MAX_PAGES", 5),
		PerPageLimit: envInt("JOBSCRAPE_PER_PAGE_LIMIT", 0),
		MinDelay:     envFloat("JOBSCRAPE_MIN_DELAY", 2),
		MaxDelay:     envFloat("JOBSCRAPE_MAX_DELAY", 5),
		RoleDelay:    envFloat("JOBSCRAPE_ROLE_DELAY", 10),
		WaitTimeout:  envFloat("JOBSCRAPE_WAIT_TIMEOUT", 15),
		Locations:    splitCSV(envString("JOBSCRAPE_LOCATIONS", "")),
		Destinations: map[string]string{
			"csv":      envString("JOBSCRAPE_CSV_PATH", filepath.Join("data", "jobs.csv")),
			"postgres": envString("JOBSCRAPE_POSTGRES_DSN", ""),
			"redis":    envString("JOBSCRAPE_REDIS_URL", ""),
		},
		RolesFile:   envString("JOBSCRAPE_ROLES_FILE", ""),
		Browser:     envString("JOBSCRAPE_BROWSER", BrowserPlaywright),
		Headless:    envBool("JOBSCRAPE_HEADLESS", true),
		CookiesFile: envString("JOBSCRAPE_COOKIES_FILE", ""),
		Retry: RetryConfig{
			MaxRetries: 5,
			BaseDelay:  2,
			MaxDelay:   60,
		},
		BatchSize:     envInt("JOBSCRAPE_BATCH_SIZE", 50),
		Table:         envString("JOBSCRAPE_TABLE", "job_postings_v1"),
		RedisKey:      envString("JOBSCRAPE_REDIS_KEY", "jobscrape:postings"),
		SessionLog:    envString("JOBSCRAPE_SESSION_LOG", ""),
		SessionLogDSN: envString("JOBSCRAPE_SESSION_LOG_DSN", ""),
		Modes: map[string]Mode{
			"csv":      {Extractors: []string{"naukri"}, Handlers: []string{"csv"}},
			"postgres": {Extractors: []string{"naukri"}, Handlers: []string{"postgres"}},
			"redis":    {Extractors: []string{"naukri"}, Handlers: []string{"redis"}},
			"all":      {Extractors: []string{"naukri"}, Handlers: []string{"csv", "postgres"}},
		},
	}
}

func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, DirName), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

func ProxiesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProxiesFileName), nil
}

func RolesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, RolesFileName), nil
}

func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFile(path)
}

// LoadFile reads a JSON5 config on top of the defaults. A missing or empty
// file yields the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	if err := json5.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

func (c Config) LookupMode(name string) (Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	mode, ok := c.Modes[name]
	if !ok {
		return Mode{}, fmt.Errorf("unknown mode %q (known: %s)", name, strings.Join(c.ModeNames(), ", "))
	}
	return mode, nil
}

func (c Config) ModeNames() []string {
	names := make([]string, 0, len(c.Modes))
	for name := range c.Modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvedDestinations expands environment variables in destinations and
// drops the ones that end up blank.
func (c Config) ResolvedDestinations() map[string]string {
	out := make(map[string]string, len(c.Destinations))
	for name, value := range c.Destinations {
		value = strings.TrimSpace(os.ExpandEnv(value))
		if value == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = value
	}
	return out
}

func Seconds(value float64) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value * float64(time.Second))
}

// Init writes default config.json, proxies.txt and roles.yaml if they don't
// already exist.
func Init() ([]string, error) {
	var created []string

	dir, err := ConfigDir()
	if err != nil {
		return created, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return created, err
	}

	configPath := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := writeConfig(configPath, DefaultConfig()); err != nil {
			return created, err
		}
		created = append(created, configPath)
	}

	proxiesPath := filepath.Join(dir, ProxiesFileName)
	if _, err := os.Stat(proxiesPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(proxiesPath, []byte(""), 0o644); err != nil {
			return created, err
		}
		created = append(created, proxiesPath)
	}

	rolesPath := filepath.Join(dir, RolesFileName)
	if _, err := os.Stat(rolesPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rolesPath, []byte(sampleRoles), 0o644); err != nil {
			return created, err
		}
		created = append(created, rolesPath)
	}

	return created, nil
}

const sampleRoles = `# Roles are searched in file order. Run a single group with --group.
backend:
  - python developer
  - golang developer
  - java developer
data:
  - data analyst
  - data engineer
`

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func LoadProxies(flagValue string) ([]string, error) {
	if strings.TrimSpace(flagValue) != "" {
		return splitCSV(flagValue), nil
	}

	if env := strings.TrimSpace(os.Getenv("JOBSCRAPE_PROXIES")); env != "" {
		return splitCSV(env), nil
	}

	path, err := ProxiesPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proxies = append(proxies, line)
	}
	return proxies, nil
}

func envString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func SplitCSV(value string) []string {
	return splitCSV(value)
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

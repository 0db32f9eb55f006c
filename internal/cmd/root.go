package cmd

import (
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/jimezsa/jobscrape/internal/config"
)

type CLI struct {
	Color   string `help:"Color output: auto, always, never." enum:"auto,always,never" default:"auto" env:"JOBSCRAPE_COLOR"`
	JSON    bool   `help:"JSON output to stdout; disables colors." env:"JOBSCRAPE_JSON"`
	Verbose bool   `help:"Enable debug logging." env:"JOBSCRAPE_VERBOSE"`

	VersionFlag kong.VersionFlag `name:"version" help:"Print version."`

	Run      RunCmd      `cmd:"" help:"Run the role queue once."`
	Schedule ScheduleCmd `cmd:"" help:"Run the role queue on a cron schedule."`
	Roles    RolesCmd    `cmd:"" help:"List the role queue."`
	Export   ExportCmd   `cmd:"" help:"Convert a stored CSV file to JSON or CSV."`
	Proxies  ProxiesCmd  `cmd:"" help:"Proxy utilities."`
	Config   ConfigCmd   `cmd:"" help:"Manage configuration."`
	Version  VersionCmd  `cmd:"" help:"Print version."`
}

func NewCLI() *CLI {
	return &CLI{}
}

// Vars exposes config values as flag defaults, so flags override the
// config file and the config file overrides built-in defaults.
func Vars(cfg config.Config, version string) kong.Vars {
	return kong.Vars{
		"version":        version,
		"max_pages":      strconv.Itoa(cfg.MaxPages),
		"per_page_limit": strconv.Itoa(cfg.PerPageLimit),
		"locations":      strings.Join(cfg.Locations, ","),
		"browser":        cfg.Browser,
		"headless":       strconv.FormatBool(cfg.Headless),
		"roles_file":     cfg.RolesFile,
	}
}

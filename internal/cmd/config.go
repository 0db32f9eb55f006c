package cmd

import (
	"fmt"
	"strings"

	"github.com/jimezsa/jobscrape/internal/config"
)

type ConfigCmd struct {
	Init  InitConfigCmd  `cmd:"" help:"Write default config, proxies and roles files."`
	Path  PathConfigCmd  `cmd:"" help:"Print config directory."`
	Modes ModesConfigCmd `cmd:"" help:"List configured run modes."`
}

type InitConfigCmd struct{}

type PathConfigCmd struct{}

type ModesConfigCmd struct{}

func (c *InitConfigCmd) Run(ctx *Context) error {
	paths, err := config.Init()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		ctx.UI.Infof("Config already initialized at %s", ctx.ConfigDir)
		return nil
	}
	ctx.UI.Infof("Created: %s", strings.Join(paths, ", "))
	return nil
}

func (c *PathConfigCmd) Run(ctx *Context) error {
	_, err := fmt.Fprintln(ctx.Out, ctx.ConfigDir)
	return err
}

func (c *ModesConfigCmd) Run(ctx *Context) error {
	for _, name := range ctx.Config.ModeNames() {
		mode := ctx.Config.Modes[name]
		if _, err := fmt.Fprintf(ctx.Out, "%s\textractors=%s\thandlers=%s\n",
			name, strings.Join(mode.Extractors, ","), strings.Join(mode.Handlers, ",")); err != nil {
			return err
		}
	}
	return nil
}

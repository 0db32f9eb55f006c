package cmd

import (
	"os"
	"strings"

	"github.com/jimezsa/jobscrape/internal/export"
	"github.com/jimezsa/jobscrape/internal/storage"
)

type ExportCmd struct {
	Path   string `arg:"" help:"CSV file written by the csv handler."`
	Format string `help:"Output format: json or csv." enum:"json,csv" default:"json"`
	Output string `short:"o" help:"Write to this path instead of stdout."`
}

func (e *ExportCmd) Run(ctx *Context) error {
	records, err := storage.ReadCSV(e.Path)
	if err != nil {
		return err
	}
	format := export.Format(strings.ToLower(strings.TrimSpace(e.Format)))

	path := strings.TrimSpace(e.Output)
	if path == "" {
		return export.WriteRecords(ctx.Out, records, format)
	}
	if err := ensureParent(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.WriteRecords(file, records, format); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	ctx.Logger.Info().Str("path", path).Int("records", len(records)).Msg("records exported")
	return nil
}

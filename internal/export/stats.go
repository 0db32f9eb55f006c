package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/muesli/termenv"
)

type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
)

type WriteOptions struct {
	ColorEnabled bool
}

func WriteStats(w io.Writer, stats *models.Statistics, format Format, opts WriteOptions) error {
	if stats == nil {
		stats = &models.Statistics{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case FormatMarkdown:
		return writeStatsMarkdown(w, stats)
	default:
		return writeStatsTable(w, stats, opts)
	}
}

func writeStatsTable(w io.Writer, stats *models.Statistics, opts WriteOptions) error {
	output := termenv.NewOutput(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"role", "status", "records", "extractors", "storage", "errors"}, "\t"))
	for _, role := range stats.Roles {
		fmt.Fprintln(tw, strings.Join([]string{
			role.Role,
			status(output, opts.ColorEnabled, role),
			fmt.Sprintf("%d", role.Records),
			extractorSummary(role.ExtractorRecords),
			storageSummary(role),
			fmt.Sprintf("%d", len(role.Errors)),
		}, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("%d roles: %d succeeded, %d failed, %d records in %s",
		stats.TotalRoles, stats.SuccessfulRoles, stats.FailedRoles, stats.TotalRecords, stats.Duration.Round(time.Millisecond))
	if stats.Cancelled {
		summary += " (cancelled)"
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}

func writeStatsMarkdown(w io.Writer, stats *models.Statistics) error {
	lines := []string{
		fmt.Sprintf("## Run %s", orDash(stats.RunID)),
		"",
		fmt.Sprintf("- Roles: %d (%d succeeded, %d failed)", stats.TotalRoles, stats.SuccessfulRoles, stats.FailedRoles),
		fmt.Sprintf("- Records: %d", stats.TotalRecords),
		fmt.Sprintf("- Duration: %s", stats.Duration.Round(time.Millisecond)),
	}
	if stats.Cancelled {
		lines = append(lines, "- Cancelled: yes")
	}
	if len(stats.Roles) > 0 {
		lines = append(lines, "", "| Role | Status | Records | Storage |", "|---|---|---|---|")
		for _, role := range stats.Roles {
			lines = append(lines, fmt.Sprintf("| %s | %s | %d | %s |", role.Role, statusWord(role), role.Records, storageSummary(role)))
		}
		for _, role := range stats.Roles {
			for _, msg := range role.Errors {
				lines = append(lines, fmt.Sprintf("- `%s`: %s", role.Role, msg))
			}
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func status(output *termenv.Output, color bool, role models.RoleStats) string {
	word := statusWord(role)
	if !color {
		return word
	}
	code := "2"
	if !role.Success {
		code = "1"
	}
	return output.String(word).Foreground(output.Color(code)).String()
}

func statusWord(role models.RoleStats) string {
	switch {
	case role.Success:
		return "ok"
	case role.Skipped:
		return "no-records"
	default:
		return "failed"
	}
}

func extractorSummary(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, counts[name]))
	}
	return strings.Join(parts, " ")
}

func storageSummary(role models.RoleStats) string {
	if role.Skipped || len(role.StorageResults) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(role.StorageResults))
	for _, res := range role.StorageResults {
		if !res.Success {
			parts = append(parts, res.Handler+":error")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:+%d/=%d/!%d", res.Handler, res.Outcome.Inserted, res.Outcome.Duplicates, res.Outcome.Errors))
	}
	return strings.Join(parts, " ")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

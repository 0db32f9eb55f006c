package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
)

func sampleStats() *models.Statistics {
	return &models.Statistics{
		RunID:           "01J0000000000000000000TEST",
		TotalRoles:      2,
		SuccessfulRoles: 1,
		FailedRoles:     1,
		TotalRecords:    3,
		Duration:        1500 * time.Millisecond,
		Roles: []models.RoleStats{
			{
				Role:             "go developer",
				Records:          3,
				ExtractorRecords: map[string]int{"naukri": 3},
				StorageResults: []models.StorageResult{
					{Handler: "csv", Outcome: models.SaveOutcome{Inserted: 2, Duplicates: 1, Success: true}, Success: true},
					{Handler: "postgres", Error: "connection refused"},
				},
				Success: true,
			},
			{
				Role:    "rust developer",
				Errors:  []string{"naukri: browser session unavailable"},
				Skipped: true,
			},
		},
	}
}

func TestWriteStatsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStats(&buf, sampleStats(), FormatTable, WriteOptions{}); err != nil {
		t.Fatalf("WriteStats() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"go developer", "csv:+2/=1/!0", "postgres:error", "no-records", "2 roles: 1 succeeded, 1 failed, 3 records"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteStatsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStats(&buf, sampleStats(), FormatJSON, WriteOptions{}); err != nil {
		t.Fatalf("WriteStats() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["total_roles"].(float64) != 2 {
		t.Fatalf("unexpected total_roles: %v", decoded["total_roles"])
	}
	roles := decoded["roles"].([]any)
	first := roles[0].(map[string]any)
	if len(first["storage_results"].([]any)) != 2 {
		t.Fatalf("expected both storage results in json")
	}
}

func TestWriteStatsMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStats(&buf, sampleStats(), FormatMarkdown, WriteOptions{}); err != nil {
		t.Fatalf("WriteStats() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "| rust developer | no-records | 0 | - |") {
		t.Fatalf("unexpected markdown:\n%s", out)
	}
	if !strings.Contains(out, "browser session unavailable") {
		t.Fatalf("expected role errors in markdown:\n%s", out)
	}
}

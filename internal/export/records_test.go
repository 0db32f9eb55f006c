package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
)

func sampleRecord() models.Record {
	return models.Record{
		Title:       "Go Developer",
		Company:     "Acme, Inc.",
		Location:    "Pune",
		Experience:  "2-5 Yrs",
		Salary:      "",
		Skills:      models.Skills{Primary: []string{"Go", "SQL"}, Secondary: []string{"Docker"}},
		Description: "Build \"fast\" services",
		JobURL:      "https://example.com/job/1",
		ScrapedAt:   time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		JobType:     "go developer",
		Site:        "naukri",
		Additional:  map[string]string{"industry": "IT"},
	}
}

func TestRecordRowRoundTrip(t *testing.T) {
	rec := sampleRecord()
	row := RecordRow(rec)
	if len(row) != len(RecordHeader()) {
		t.Fatalf("row has %d fields, header %d", len(row), len(RecordHeader()))
	}
	if row[4] != models.NotAvailable {
		t.Fatalf("expected empty salary to be written as NA, got %q", row[4])
	}
	if row[5] != `["Go","SQL"]` {
		t.Fatalf("unexpected primary skills column: %q", row[5])
	}

	got, err := ParseRecordRow(RecordHeader(), row)
	if err != nil {
		t.Fatalf("ParseRecordRow() error = %v", err)
	}
	if got.JobURL != rec.JobURL || got.Company != rec.Company || !got.ScrapedAt.Equal(rec.ScrapedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
	if strings.Join(got.Skills.Primary, ",") != "Go,SQL" || got.Additional["industry"] != "IT" {
		t.Fatalf("unexpected nested fields: %+v", got)
	}
}

func TestParseRecordRowLegacyColumns(t *testing.T) {
	header := []string{"Title", "job_url", "primary_skills"}
	got, err := ParseRecordRow(header, []string{"Analyst", "https://example.com/a", "Excel, SQL"})
	if err != nil {
		t.Fatalf("ParseRecordRow() error = %v", err)
	}
	if got.Title != "Analyst" || len(got.Skills.Primary) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := ParseRecordRow(header, []string{"only one"}); err == nil {
		t.Fatalf("expected error for short row")
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRecords(&buf, []models.Record{sampleRecord()}, FormatCSV); err != nil {
		t.Fatalf("WriteRecords() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one row, got %d rows", len(rows))
	}
	if rows[0][8] != "job_url" || rows[1][8] != "https://example.com/job/1" {
		t.Fatalf("unexpected job_url column: %q / %q", rows[0][8], rows[1][8])
	}
}

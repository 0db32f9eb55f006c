package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/rs/zerolog"
)

func TestHandlersShareDedupKey(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	first := []models.Record{{Title: "Go Developer", JobURL: "https://www.naukri.com/job-listings-go-developer-123?src=jobsearchDesk&sid=111"}}
	second := []models.Record{{Title: "Go Developer", JobURL: "https://www.naukri.com/job-listings-go-developer-123?src=jobsearchDesk&sid=222"}}

	handlers := []struct {
		handler Handler
		dest    string
	}{
		{NewCSV(zerolog.Nop()), filepath.Join(t.TempDir(), "jobs.csv")},
		{NewRedis("", zerolog.Nop()), "redis://" + srv.Addr() + "/0"},
	}

	for _, tc := range handlers {
		t.Run(tc.handler.Name(), func(t *testing.T) {
			got, err := tc.handler.Save(ctx, first, tc.dest)
			if err != nil || got.Inserted != 1 {
				t.Fatalf("first Save() = %+v, %v", got, err)
			}
			got, err = tc.handler.Save(ctx, second, tc.dest)
			if err != nil {
				t.Fatalf("second Save() error = %v", err)
			}
			if got.Inserted != 0 || got.Duplicates != 1 {
				t.Fatalf("tracking params must not defeat dedup: %+v", got)
			}
		})
	}

	if raw := srv.HGet(DefaultRedisKey, "https://www.naukri.com/job-listings-go-developer-123"); raw == "" {
		keys, _ := srv.HKeys(DefaultRedisKey)
		t.Fatalf("expected redis field under the normalized url, keys: %v", keys)
	}
	rows := readCSV(t, handlers[0].dest)
	if got := rows[1][indexOf(rows[0], "job_url")]; got != "https://www.naukri.com/job-listings-go-developer-123" {
		t.Fatalf("csv job_url = %q, want normalized url", got)
	}
}

func TestRecordArgsNormalizesJobURL(t *testing.T) {
	rec := models.Record{JobURL: "HTTPS://Example.com/jobs/1/?utm_source=x#apply"}
	if got := recordArgs(rec)[8]; got != "https://example.com/jobs/1" {
		t.Fatalf("job_url arg = %v", got)
	}
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

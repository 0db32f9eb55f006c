package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23502"}) {
		t.Fatalf("not-null violation is not a duplicate")
	}
	if isUniqueViolation(nil) {
		t.Fatalf("nil is not a duplicate")
	}
}

func TestNewPostgresValidatesTable(t *testing.T) {
	if _, err := NewPostgres(PostgresOptions{Table: "jobs; DROP TABLE x"}, zerolog.Nop()); err == nil {
		t.Fatalf("expected invalid table name to be rejected")
	}
	p, err := NewPostgres(PostgresOptions{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	if p.opts.Table != DefaultTable || p.opts.BatchSize != 50 {
		t.Fatalf("unexpected defaults: %+v", p.opts)
	}
	if !strings.Contains(p.insertSQL(), `"job_postings_v1"`) {
		t.Fatalf("expected quoted table in insert: %s", p.insertSQL())
	}
}

func TestRecordArgsDefaultsScrapedAt(t *testing.T) {
	args := recordArgs(testRecords()[0])
	if len(args) != 13 {
		t.Fatalf("expected 13 args, got %d", len(args))
	}
	if ts, ok := args[9].(*time.Time); !ok || ts == nil {
		t.Fatalf("expected scraped_at pointer, got %#v", args[9])
	}
	if args[5] != "[]" {
		t.Fatalf("expected empty skills as [], got %v", args[5])
	}
	if args[12] != nil {
		t.Fatalf("expected NULL additional details, got %v", args[12])
	}

	rec := testRecords()[0]
	rec.ScrapedAt = time.Time{}
	if ts := recordArgs(rec)[9].(*time.Time); ts != nil {
		t.Fatalf("expected nil scraped_at for zero time")
	}
}

// Runs against a real server when JOBSCRAPE_TEST_POSTGRES_DSN is set.
func TestPostgresSaveIsIdempotent(t *testing.T) {
	dsn := os.Getenv("JOBSCRAPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JOBSCRAPE_TEST_POSTGRES_DSN not set")
	}

	table := fmt.Sprintf("job_postings_test_%d", time.Now().UnixNano())
	p, err := NewPostgres(PostgresOptions{BatchSize: 1, Table: table}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	t.Cleanup(func() {
		conn, err := pgx.Connect(context.Background(), dsn)
		if err != nil {
			return
		}
		defer conn.Close(context.Background())
		_, _ = conn.Exec(context.Background(), "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize())
	})

	records := testRecords()
	ctx := context.Background()

	first, err := p.Save(ctx, records, dsn)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if first.Inserted != len(records) || !first.Success {
		t.Fatalf("unexpected first outcome: %+v", first)
	}

	second, err := p.Save(ctx, records, dsn)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if second.Inserted != 0 || second.Duplicates != len(records) || second.Errors != 0 {
		t.Fatalf("unexpected second outcome: %+v", second)
	}
}

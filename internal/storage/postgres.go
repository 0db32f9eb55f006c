package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTable carries the schema version in its name; a schema change gets
// a new table.
const DefaultTable = "job_postings_v1"

const (
	sqlStateUniqueViolation   = "23505"
	sqlStateInvalidCatalog    = "3D000"
	sqlStateDuplicateDatabase = "42P04"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type PostgresOptions struct {
	BatchSize int
	Table     string
}

// Postgres inserts records one by one inside batched transactions. Each
// insert runs under its own savepoint so a duplicate or bad row never aborts
// the batch.
type Postgres struct {
	opts   PostgresOptions
	logger zerolog.Logger

	mu    sync.Mutex
	ready map[string]bool
}

func NewPostgres(opts PostgresOptions, logger zerolog.Logger) (*Postgres, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if !tableNamePattern.MatchString(opts.Table) {
		return nil, fmt.Errorf("invalid table name %q", opts.Table)
	}
	return &Postgres{
		opts:   opts,
		logger: logger.With().Str("component", "storage.postgres").Str("table", opts.Table).Logger(),
		ready:  map[string]bool{},
	}, nil
}

func (p *Postgres) Name() string {
	return NamePostgres
}

func (p *Postgres) Save(ctx context.Context, records []models.Record, destination string) (models.SaveOutcome, error) {
	if len(records) == 0 {
		return models.SaveOutcome{Success: true}, nil
	}

	conn, err := p.connect(ctx, destination)
	if err != nil {
		return models.SaveOutcome{}, err
	}
	defer conn.Close(context.Background())

	if err := p.ensureTable(ctx, conn, destination); err != nil {
		return models.SaveOutcome{}, err
	}

	insert := p.insertSQL()
	var outcome models.SaveOutcome

	tx, err := conn.Begin(ctx)
	if err != nil {
		return outcome, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback(context.Background())
		}
	}()

	pending := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			break
		}
		key, ok := recordKey(rec)
		if !ok {
			outcome.Errors++
			continue
		}
		rec.JobURL = key

		inserted, err := insertRecord(ctx, tx, insert, rec)
		switch {
		case err == nil && inserted:
			outcome.Inserted++
		case err == nil:
			outcome.Duplicates++
		default:
			outcome.Errors++
			p.logger.Warn().Err(err).Str("url", rec.JobURL).Msg("insert failed")
			var rbErr *savepointError
			if errors.As(err, &rbErr) {
				// the transaction is unusable once a savepoint cannot roll back
				return outcome, err
			}
		}

		pending++
		if pending >= p.opts.BatchSize {
			if err := tx.Commit(ctx); err != nil {
				tx = nil
				return outcome, fmt.Errorf("commit batch: %w", err)
			}
			p.logger.Debug().Int("rows", pending).Msg("batch committed")
			pending = 0
			if tx, err = conn.Begin(ctx); err != nil {
				tx = nil
				return outcome, fmt.Errorf("begin transaction: %w", err)
			}
		}
	}

	err = tx.Commit(ctx)
	tx = nil
	if err != nil {
		return outcome, fmt.Errorf("commit batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return outcome, err
	}

	outcome.Success = outcome.Errors == 0 || outcome.Inserted+outcome.Duplicates > 0
	p.logger.Info().
		Int("inserted", outcome.Inserted).
		Int("duplicates", outcome.Duplicates).
		Int("errors", outcome.Errors).
		Msg("records saved")
	return outcome, nil
}

type savepointError struct {
	err error
}

func (e *savepointError) Error() string { return "rollback savepoint: " + e.err.Error() }
func (e *savepointError) Unwrap() error { return e.err }

// insertRecord inserts rec under a savepoint. A unique violation on job_url
// reports inserted=false with a nil error.
func insertRecord(ctx context.Context, tx pgx.Tx, insert string, rec models.Record) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, &savepointError{err: err}
	}

	_, err = sp.Exec(ctx, insert, recordArgs(rec)...)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, &savepointError{err: rbErr}
		}
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return false, &savepointError{err: err}
	}
	return true, nil
}

func recordArgs(rec models.Record) []any {
	var scrapedAt *time.Time
	if !rec.ScrapedAt.IsZero() {
		ts := rec.ScrapedAt.UTC()
		scrapedAt = &ts
	}
	jobURL := strings.TrimSpace(rec.JobURL)
	if key, ok := recordKey(rec); ok {
		jobURL = key
	}
	return []any{
		models.OrNA(rec.Title),
		models.OrNA(rec.Company),
		models.OrNA(rec.Location),
		models.OrNA(rec.Experience),
		models.OrNA(rec.Salary),
		jsonText(nonNil(rec.Skills.Primary)),
		jsonText(nonNil(rec.Skills.Secondary)),
		models.OrNA(rec.Description),
		jobURL,
		scrapedAt,
		models.OrNA(rec.JobType),
		strings.TrimSpace(rec.Site),
		additionalText(rec.Additional),
	}
}

func (p *Postgres) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (
	title, company, location, experience, salary,
	primary_skills, secondary_skills, description, job_url,
	scraped_at, job_type, site, additional_details
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, now()), $11, $12, $13)`, p.quotedTable())
}

func (p *Postgres) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	company TEXT NOT NULL,
	location TEXT NOT NULL,
	experience TEXT NOT NULL,
	salary TEXT NOT NULL,
	primary_skills TEXT NOT NULL DEFAULT '[]',
	secondary_skills TEXT NOT NULL DEFAULT '[]',
	description TEXT NOT NULL,
	job_url TEXT NOT NULL UNIQUE,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	job_type TEXT NOT NULL,
	site TEXT NOT NULL DEFAULT '',
	additional_details TEXT
)`, p.quotedTable())
}

func (p *Postgres) quotedTable() string {
	return pgx.Identifier{p.opts.Table}.Sanitize()
}

func (p *Postgres) ensureTable(ctx context.Context, conn *pgx.Conn, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready[destination] {
		return nil
	}
	if _, err := conn.Exec(ctx, p.createTableSQL()); err != nil {
		return fmt.Errorf("create table %s: %w", p.opts.Table, err)
	}
	p.ready[destination] = true
	return nil
}

// connect opens destination, creating the database first when the server
// reports it does not exist.
func (p *Postgres) connect(ctx context.Context, destination string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(destination)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err == nil {
		return conn, nil
	}
	if !hasSQLState(err, sqlStateInvalidCatalog) || cfg.Database == "" {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := p.createDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	conn, err = pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return conn, nil
}

func (p *Postgres) createDatabase(ctx context.Context, cfg *pgx.ConnConfig) error {
	admin := cfg.Copy()
	admin.Database = "postgres"

	conn, err := pgx.ConnectConfig(ctx, admin)
	if err != nil {
		return fmt.Errorf("connect maintenance database: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.Database}.Sanitize())
	if err != nil && !hasSQLState(err, sqlStateDuplicateDatabase) {
		return fmt.Errorf("create database %s: %w", cfg.Database, err)
	}
	p.logger.Info().Str("database", cfg.Database).Msg("database created")
	return nil
}

func isUniqueViolation(err error) bool {
	return hasSQLState(err, sqlStateUniqueViolation)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func jsonText(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(data)
}

func additionalText(values map[string]string) any {
	if len(values) == 0 {
		return nil
	}
	return jsonText(values)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

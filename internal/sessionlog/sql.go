package sessionlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const createRunsTable = `CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	role_group TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	roles INTEGER NOT NULL DEFAULT 0,
	successful_roles INTEGER NOT NULL DEFAULT 0,
	failed_roles INTEGER NOT NULL DEFAULT 0,
	records INTEGER NOT NULL DEFAULT 0,
	cancelled BOOLEAN NOT NULL DEFAULT false
)`

const insertRun = `INSERT INTO pipeline_runs (id, mode, role_group, started_at)
VALUES (:id, :mode, :role_group, :started_at)
ON CONFLICT (id) DO NOTHING`

const finishRun = `UPDATE pipeline_runs SET
	finished_at = :finished_at,
	roles = :roles,
	successful_roles = :successful_roles,
	failed_roles = :failed_roles,
	records = :records,
	cancelled = :cancelled
WHERE id = :id`

type SQL struct {
	db *sqlx.DB

	mu    sync.Mutex
	ready bool
}

func OpenSQL(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session log database: %w", err)
	}
	db.SetMaxOpenConns(2)
	return NewSQL(db), nil
}

func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) ensureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, createRunsTable); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *SQL) Start(ctx context.Context, run Run) error {
	if err := s.ensureTable(ctx); err != nil {
		return fmt.Errorf("create pipeline_runs: %w", err)
	}
	if _, err := s.db.NamedExecContext(ctx, insertRun, run); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQL) Finish(ctx context.Context, run Run) error {
	if err := s.ensureTable(ctx); err != nil {
		return fmt.Errorf("create pipeline_runs: %w", err)
	}
	if _, err := s.db.NamedExecContext(ctx, finishRun, run); err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

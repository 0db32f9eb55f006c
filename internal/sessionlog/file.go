package sessionlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Start(ctx context.Context, run Run) error {
	return f.write("run_started", func(e *zerolog.Event) {
		e.Str("run_id", run.ID).
			Str("mode", run.Mode).
			Str("group", run.Group).
			Time("started_at", run.StartedAt)
	})
}

func (f *File) Finish(ctx context.Context, run Run) error {
	return f.write("run_finished", func(e *zerolog.Event) {
		e.Str("run_id", run.ID).
			Str("mode", run.Mode).
			Str("group", run.Group).
			Time("started_at", run.StartedAt).
			Time("finished_at", run.FinishedAt).
			Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
			Int("roles", run.Roles).
			Int("successful_roles", run.SuccessfulRoles).
			Int("failed_roles", run.FailedRoles).
			Int("records", run.Records).
			Bool("cancelled", run.Cancelled)
	})
}

func (f *File) write(event string, fields func(*zerolog.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session log dir: %w", err)
		}
	}
	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer out.Close()

	logger := zerolog.New(out).With().Timestamp().Logger()
	e := logger.Log().Str("event", event)
	fields(e)
	e.Msg("")
	return nil
}

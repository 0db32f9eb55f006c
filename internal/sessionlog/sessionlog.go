package sessionlog

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/oklog/ulid/v2"
)

type Run struct {
	ID              string    `json:"run_id" db:"id"`
	Mode            string    `json:"mode" db:"mode"`
	Group           string    `json:"group,omitempty" db:"role_group"`
	StartedAt       time.Time `json:"started_at" db:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Roles           int       `json:"roles" db:"roles"`
	SuccessfulRoles int       `json:"successful_roles" db:"successful_roles"`
	FailedRoles     int       `json:"failed_roles" db:"failed_roles"`
	Records         int       `json:"records" db:"records"`
	Cancelled       bool      `json:"cancelled" db:"cancelled"`
}

func (r *Run) Apply(stats *models.Statistics) {
	if stats == nil {
		return
	}
	r.Roles = stats.TotalRoles
	r.SuccessfulRoles = stats.SuccessfulRoles
	r.FailedRoles = stats.FailedRoles
	r.Records = stats.TotalRecords
	r.Cancelled = stats.Cancelled
	if !stats.FinishedAt.IsZero() {
		r.FinishedAt = stats.FinishedAt
	}
}

type Logger interface {
	Start(ctx context.Context, run Run) error
	Finish(ctx context.Context, run Run) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a ULID, so run IDs sort by start time.
func NewRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

type Nop struct{}

func (Nop) Start(context.Context, Run) error  { return nil }
func (Nop) Finish(context.Context, Run) error { return nil }

type Multi []Logger

func (m Multi) Start(ctx context.Context, run Run) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Start(ctx, run))
	}
	return errors.Join(errs...)
}

func (m Multi) Finish(ctx context.Context, run Run) error {
	var errs []error
	for _, l := range m {
		errs = append(errs, l.Finish(ctx, run))
	}
	return errors.Join(errs...)
}

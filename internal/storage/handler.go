package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/seen"
	"github.com/rs/zerolog"
)

const (
	NameCSV      = "csv"
	NamePostgres = "postgres"
	NameRedis    = "redis"
)

type Handler interface {
	Name() string
	Save(ctx context.Context, records []models.Record, destination string) (models.SaveOutcome, error)
}

type Options struct {
	BatchSize int
	Table     string
	RedisKey  string
}

func DefaultOptions() Options {
	return Options{
		BatchSize: 50,
		Table:     DefaultTable,
		RedisKey:  DefaultRedisKey,
	}
}

func New(name string, opts Options, logger zerolog.Logger) (Handler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameCSV:
		return NewCSV(logger), nil
	case NamePostgres:
		return NewPostgres(PostgresOptions{BatchSize: opts.BatchSize, Table: opts.Table}, logger)
	case NameRedis:
		return NewRedis(opts.RedisKey, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage handler %q (known: %s)", name, strings.Join(Names(), ", "))
	}
}

// recordKey is the job URL form every handler stores and dedups on.
func recordKey(rec models.Record) (string, bool) {
	return seen.Key(rec.JobURL)
}

func Names() []string {
	names := []string{NameCSV, NamePostgres, NameRedis}
	sort.Strings(names)
	return names
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultRedisKey = "jobscrape:postings"

// Redis stores records in a hash keyed by job URL. HSETNX makes the URL
// the uniqueness constraint.
type Redis struct {
	key    string
	logger zerolog.Logger

	newClient func(opts *redis.Options) *redis.Client
}

func NewRedis(key string, logger zerolog.Logger) *Redis {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &Redis{
		key:       key,
		logger:    logger.With().Str("component", "storage.redis").Str("key", key).Logger(),
		newClient: redis.NewClient,
	}
}

func (r *Redis) Name() string {
	return NameRedis
}

func (r *Redis) Save(ctx context.Context, records []models.Record, destination string) (models.SaveOutcome, error) {
	if len(records) == 0 {
		return models.SaveOutcome{Success: true}, nil
	}

	opts, err := redis.ParseURL(destination)
	if err != nil {
		return models.SaveOutcome{}, fmt.Errorf("parse redis url: %w", err)
	}
	client := r.newClient(opts)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return models.SaveOutcome{}, fmt.Errorf("connect redis: %w", err)
	}

	var outcome models.SaveOutcome
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		url, ok := recordKey(rec)
		if !ok {
			outcome.Errors++
			continue
		}
		rec.JobURL = url
		payload, err := json.Marshal(rec)
		if err != nil {
			outcome.Errors++
			continue
		}
		added, err := client.HSetNX(ctx, r.key, url, payload).Result()
		if err != nil {
			outcome.Errors++
			r.logger.Warn().Err(err).Str("url", url).Msg("hsetnx failed")
			continue
		}
		if added {
			outcome.Inserted++
		} else {
			outcome.Duplicates++
		}
	}

	outcome.Success = outcome.Errors == 0 || outcome.Inserted+outcome.Duplicates > 0
	r.logger.Info().
		Int("inserted", outcome.Inserted).
		Int("duplicates", outcome.Duplicates).
		Int("errors", outcome.Errors).
		Msg("records saved")
	return outcome, nil
}

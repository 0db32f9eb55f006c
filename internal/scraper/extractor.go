package scraper

import (
	"context"

	"github.com/jimezsa/jobscrape/internal/models"
)

// Extractor returns an error only when the site could not be worked at all.
// An empty result is not an error.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, role string, locations []string) ([]models.Record, error)
}

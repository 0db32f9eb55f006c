package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jimezsa/jobscrape/internal/export"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/rs/zerolog"
)

// CSV appends records to a comma separated file. The header is written only
// when the file is new or empty; URLs already present in the file are
// skipped.
type CSV struct {
	logger zerolog.Logger
}

func NewCSV(logger zerolog.Logger) *CSV {
	return &CSV{logger: logger.With().Str("component", "storage.csv").Logger()}
}

func (c *CSV) Name() string {
	return NameCSV
}

func (c *CSV) Save(ctx context.Context, records []models.Record, destination string) (models.SaveOutcome, error) {
	if len(records) == 0 {
		return models.SaveOutcome{Success: true}, nil
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return models.SaveOutcome{}, errors.New("csv destination path is required")
	}
	if err := ctx.Err(); err != nil {
		return models.SaveOutcome{}, err
	}

	if dir := filepath.Dir(destination); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return models.SaveOutcome{}, fmt.Errorf("create directory: %w", err)
		}
	}

	existing, empty, err := existingURLs(destination)
	if err != nil {
		return models.SaveOutcome{}, err
	}

	f, err := os.OpenFile(destination, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return models.SaveOutcome{}, fmt.Errorf("open %s: %w", destination, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if empty {
		if err := writer.Write(export.RecordHeader()); err != nil {
			return models.SaveOutcome{}, err
		}
	}

	var outcome models.SaveOutcome
	for _, rec := range records {
		key, ok := recordKey(rec)
		if !ok {
			c.logger.Warn().Str("title", rec.Title).Msg("record without job url skipped")
			outcome.Errors++
			continue
		}
		if _, dup := existing[key]; dup {
			outcome.Duplicates++
			continue
		}
		rec.JobURL = key
		if err := writer.Write(export.RecordRow(rec)); err != nil {
			outcome.Errors++
			continue
		}
		existing[key] = struct{}{}
		outcome.Inserted++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return outcome, fmt.Errorf("write %s: %w", destination, err)
	}
	if err := f.Sync(); err != nil {
		return outcome, fmt.Errorf("sync %s: %w", destination, err)
	}

	outcome.Success = true
	c.logger.Info().
		Str("path", destination).
		Int("inserted", outcome.Inserted).
		Int("duplicates", outcome.Duplicates).
		Msg("records appended")
	return outcome, nil
}

// existingURLs loads the dedup keys of an existing file. empty reports
// whether the file is missing or has no content, in which case a header
// must be written.
func existingURLs(path string) (map[string]struct{}, bool, error) {
	keys := map[string]struct{}{}
	empty, err := scanCSV(path, func(rec models.Record, err error) error {
		// a malformed row still counts for dedup by its job_url column
		if key, ok := recordKey(rec); ok {
			keys[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return keys, empty, nil
}

func ReadCSV(path string) ([]models.Record, error) {
	var records []models.Record
	row := 1
	_, err := scanCSV(path, func(rec models.Record, err error) error {
		row++
		if err != nil {
			return fmt.Errorf("%s row %d: %w", path, row, err)
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scanCSV decodes each data row of path with export.ParseRecordRow. When a
// row cannot be decoded, visit gets the error and a record holding only the
// job_url column.
func scanCSV(path string, visit func(models.Record, error) error) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read header of %s: %w", path, err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "job_url") {
			col = i
			break
		}
	}
	if col < 0 {
		return false, fmt.Errorf("%s has no job_url column", path)
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", path, err)
		}
		rec, perr := export.ParseRecordRow(header, row)
		if perr != nil && col < len(row) {
			rec.JobURL = row[col]
		}
		if err := visit(rec, perr); err != nil {
			return false, err
		}
	}
	return false, nil
}

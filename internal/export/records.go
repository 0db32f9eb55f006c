package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
)

func RecordHeader() []string {
	return []string{
		"title",
		"company",
		"location",
		"experience",
		"salary",
		"primary_skills",
		"secondary_skills",
		"description",
		"job_url",
		"scraped_at",
		"job_type",
		"site",
		"additional_details",
	}
}

// RecordRow renders rec in RecordHeader order. Skill lists and additional
// details are JSON encoded.
func RecordRow(rec models.Record) []string {
	scraped := ""
	if !rec.ScrapedAt.IsZero() {
		scraped = rec.ScrapedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		models.OrNA(rec.Title),
		models.OrNA(rec.Company),
		models.OrNA(rec.Location),
		models.OrNA(rec.Experience),
		models.OrNA(rec.Salary),
		jsonList(rec.Skills.Primary),
		jsonList(rec.Skills.Secondary),
		models.OrNA(rec.Description),
		strings.TrimSpace(rec.JobURL),
		scraped,
		models.OrNA(rec.JobType),
		strings.TrimSpace(rec.Site),
		jsonMap(rec.Additional),
	}
}

// ParseRecordRow is the inverse of RecordRow for a row read under header.
// Unknown columns are ignored so older files with fewer columns still load.
func ParseRecordRow(header, row []string) (models.Record, error) {
	if len(row) != len(header) {
		return models.Record{}, fmt.Errorf("row has %d fields, header has %d", len(row), len(header))
	}
	var rec models.Record
	for i, name := range header {
		value := row[i]
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "title":
			rec.Title = value
		case "company":
			rec.Company = value
		case "location":
			rec.Location = value
		case "experience":
			rec.Experience = value
		case "salary":
			rec.Salary = value
		case "primary_skills":
			list, err := parseList(value)
			if err != nil {
				return models.Record{}, fmt.Errorf("primary_skills: %w", err)
			}
			rec.Skills.Primary = list
		case "secondary_skills":
			list, err := parseList(value)
			if err != nil {
				return models.Record{}, fmt.Errorf("secondary_skills: %w", err)
			}
			rec.Skills.Secondary = list
		case "description":
			rec.Description = value
		case "job_url":
			rec.JobURL = value
		case "scraped_at":
			if strings.TrimSpace(value) == "" {
				continue
			}
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return models.Record{}, fmt.Errorf("scraped_at: %w", err)
			}
			rec.ScrapedAt = ts
		case "job_type":
			rec.JobType = value
		case "site":
			rec.Site = value
		case "additional_details":
			if strings.TrimSpace(value) == "" || value == "{}" {
				continue
			}
			if err := json.Unmarshal([]byte(value), &rec.Additional); err != nil {
				return models.Record{}, fmt.Errorf("additional_details: %w", err)
			}
		}
	}
	return rec, nil
}

func WriteRecords(w io.Writer, records []models.Record, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []models.Record{}
		}
		return enc.Encode(records)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(RecordHeader()); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writer.Write(RecordRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func jsonList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func jsonMap(values map[string]string) string {
	if len(values) == 0 {
		return "{}"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func parseList(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" || models.IsNA(value) {
		return nil, nil
	}
	if !strings.HasPrefix(value, "[") {
		// older files stored comma separated skills
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, err
	}
	return out, nil
}

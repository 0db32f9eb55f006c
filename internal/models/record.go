package models

import (
	"strings"
	"time"
)

// NotAvailable marks a field the source page did not expose.
const NotAvailable = "NA"

type Skills struct {
	Primary   []string `json:"primary"`
	Secondary []string `json:"secondary"`
}

type Record struct {
	Title       string            `json:"title"`
	Company     string            `json:"company"`
	Location    string            `json:"location"`
	Experience  string            `json:"experience"`
	Salary      string            `json:"salary"`
	Skills      Skills            `json:"skills"`
	Description string            `json:"description"`
	JobURL      string            `json:"job_url"`
	ScrapedAt   time.Time         `json:"scraped_at"`
	JobType     string            `json:"job_type"`
	Site        string            `json:"site,omitempty"`
	Additional  map[string]string `json:"additional,omitempty"`
}

func OrNA(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return NotAvailable
	}
	return value
}

func IsNA(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, NotAvailable)
}

package scraper

import (
	"strings"
	"unicode"

	"github.com/jimezsa/jobscrape/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldLocation lowercases value and strips accents so "Bengaluru" matches
// "BENGALURU" and "Zürich" matches "zurich".
func foldLocation(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, value)
	if err != nil {
		result = value
	}
	return cases.Fold().String(strings.Join(strings.Fields(result), " "))
}

func filterByLocation(records []models.Record, locations []string) []models.Record {
	var needles []string
	for _, loc := range locations {
		if folded := foldLocation(loc); folded != "" {
			needles = append(needles, folded)
		}
	}
	if len(needles) == 0 {
		return records
	}

	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if models.IsNA(rec.Location) {
			continue
		}
		haystack := foldLocation(rec.Location)
		for _, needle := range needles {
			if strings.Contains(haystack, needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/seen"
)

type posting struct {
	Title          string
	Company        string
	Location       string
	Description    string
	Salary         string
	EmploymentType string
	DatePosted     string
	URL            string
}

func cleanText(value string) string {
	value = html.UnescapeString(value)
	return strings.Join(strings.Fields(value), " ")
}

func absoluteURL(base string, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

func slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	var b strings.Builder
	lastDash := false
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

func parsePostedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02T15:04:05-0700",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %s", value)
}

// jsonLDPosting returns the first JobPosting found in the document's
// ld+json scripts.
func jsonLDPosting(doc *goquery.Document) (posting, bool) {
	var found posting
	ok := false

	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}
		data, err := decodeJSONLD(raw)
		if err != nil {
			return true
		}
		postings := extractPostings(data)
		if len(postings) == 0 {
			return true
		}
		found, ok = postings[0], true
		return false
	})

	return found, ok
}

func decodeJSONLD(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<!--")
	raw = strings.TrimSuffix(raw, "-->")
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\u2028", "")
	raw = strings.ReplaceAll(raw, "\u2029", "")

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

func extractPostings(data any) []posting {
	var out []posting

	switch value := data.(type) {
	case []any:
		for _, item := range value {
			out = append(out, extractPostings(item)...)
		}
	case map[string]any:
		if typ := strings.ToLower(stringValue(value["@type"], value["type"])); typ == "jobposting" {
			return append(out, postingFromMap(value))
		}
		if graph, ok := value["@graph"]; ok {
			out = append(out, extractPostings(graph)...)
		}
		if main, ok := value["mainEntity"]; ok {
			out = append(out, extractPostings(main)...)
		}
	}

	return out
}

func postingFromMap(value map[string]any) posting {
	return posting{
		Title:          stringValue(value["title"], value["name"]),
		Company:        stringValue(mapValue(value["hiringOrganization"], "name")),
		Location:       locationFromJSONLD(value["jobLocation"]),
		Description:    cleanText(htmlToText(stringValue(value["description"]))),
		Salary:         salaryFromJSONLD(value["baseSalary"]),
		EmploymentType: stringValue(value["employmentType"]),
		DatePosted:     stringValue(value["datePosted"]),
		URL:            stringValue(value["url"], value["@id"]),
	}
}

func htmlToText(value string) string {
	if !strings.Contains(value, "<") {
		return value
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return value
	}
	return doc.Text()
}

func salaryFromJSONLD(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case map[string]any:
		if amount := mapValue(v["value"], "value"); amount != nil {
			return strings.TrimSpace(stringValue(amount) + " " + stringValue(v["currency"]))
		}
		if amount := mapValue(v["value"], "minValue"); amount != nil {
			max := mapValue(v["value"], "maxValue")
			currency := stringValue(v["currency"])
			minStr := stringValue(amount)
			maxStr := stringValue(max)
			if maxStr != "" {
				return strings.TrimSpace(minStr + " - " + maxStr + " " + currency)
			}
			return strings.TrimSpace(minStr + " " + currency)
		}
	case string:
		return v
	}
	return ""
}

func locationFromJSONLD(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case []any:
		var parts []string
		for _, item := range v {
			loc := locationFromJSONLD(item)
			if loc != "" {
				parts = append(parts, loc)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		address := v["address"]
		if addressMap, ok := address.(map[string]any); ok {
			return joinAddress(addressMap)
		}
		return joinAddress(v)
	case string:
		return v
	}

	return ""
}

func joinAddress(value map[string]any) string {
	parts := []string{
		stringValue(value["streetAddress"]),
		stringValue(value["addressLocality"]),
		stringValue(value["addressRegion"]),
		stringValue(value["postalCode"]),
		stringValue(value["addressCountry"]),
	}
	var cleaned []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, ", ")
}

func stringValue(values ...any) string {
	for _, value := range values {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
		case int:
			return fmt.Sprintf("%d", v)
		case int64:
			return fmt.Sprintf("%d", v)
		case json.Number:
			return v.String()
		case []any:
			var parts []string
			for _, item := range v {
				if s := stringValue(item); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		case map[string]any:
			if name := stringValue(v["name"]); name != "" {
				return name
			}
		}
	}
	return ""
}

func mapValue(value any, key string) any {
	if value == nil {
		return nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func dedupeRecords(records []models.Record) []models.Record {
	keys := map[string]struct{}{}
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		key, ok := seen.Key(rec.JobURL)
		if !ok {
			key = strings.ToLower(rec.Title + "|" + rec.Company + "|" + rec.Location)
		}
		if _, exists := keys[key]; exists {
			continue
		}
		keys[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

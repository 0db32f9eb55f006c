package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

func stepstoneProfile() Profile {
	return Profile{
		Name:       SiteStepstone,
		BaseURL:    "https://www.stepstone.de",
		ListingURL: buildStepstoneURL,
		ItemAnchor: "a[href*='stellenangebote--']",
		NextPage:   "a[aria-label='Nächste'], a[data-at='pagination-next'], a[rel='next']",
		Fields: Fields{
			Title:       "h1[data-at='header-job-title'], h1",
			Company:     "[data-at='metadata-company-name'], [data-at='header-company-name']",
			Location:    "[data-at='metadata-location'], [data-at='header-job-location']",
			Experience:  "[data-at='metadata-experience']",
			Salary:      "[data-at='metadata-salary']",
			Description: "[data-at='jobad-description'], [data-at='job-ad-content']",
			Additional: map[string]string{
				"employment_type": "[data-at='metadata-contract-type']",
				"work_type":       "[data-at='metadata-work-type']",
				"posted":          "[data-at='metadata-online-date']",
			},
		},
		Headers: map[string]string{
			"accept-language": "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7",
		},
	}
}

func buildStepstoneURL(role, location string, page int) string {
	base := "https://www.stepstone.de/jobs"
	query := slugify(role)
	if query == "" {
		query = strings.ToLower(strings.TrimSpace(role))
	}
	path := fmt.Sprintf("%s/%s", base, url.PathEscape(query))
	if loc := slugify(location); loc != "" {
		path = fmt.Sprintf("%s/in-%s", path, url.PathEscape(loc))
	}
	if page > 1 {
		return fmt.Sprintf("%s?page=%d", path, page)
	}
	return path
}

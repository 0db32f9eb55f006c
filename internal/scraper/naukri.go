package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

func naukriProfile() Profile {
	return Profile{
		Name:       SiteNaukri,
		BaseURL:    "https://www.naukri.com",
		ListingURL: buildNaukriURL,
		ItemAnchor: "a.title, .srp-jobtuple-wrapper a.title, article.jobTuple a.title",
		NextPage:   "div[class*='pagination'] a:contains('Next'), a.fright.fs14.btn-secondary.br2",
		Fields: Fields{
			Title:           "h1[class*='jd-header-title'], h1",
			Company:         "div[class*='jd-header-comp-name'] a, div[class*='jd-header-comp-name']",
			Location:        "span[class*='location'] a, span[class*='location']",
			Experience:      "div[class*='exp'] span",
			Salary:          "div[class*='salary'] span",
			Description:     "section[class*='job-desc'], div[class*='dang-inner-html']",
			PrimarySkills:   "div[class*='key-skill'] a:has(i)",
			SecondarySkills: "div[class*='key-skill'] a:not(:has(i))",
			Additional: map[string]string{
				"role":            "div[class*='details'] label:contains('Role:') + span",
				"industry":        "div[class*='details'] label:contains('Industry Type:') + span",
				"department":      "div[class*='details'] label:contains('Department:') + span",
				"employment_type": "div[class*='details'] label:contains('Employment Type:') + span",
				"education":       "div[class*='education'] span",
				"openings":        "span[class*='stat'] label:contains('Openings') + span",
				"applicants":      "span[class*='stat'] label:contains('Applicants') + span",
			},
		},
	}
}

// buildNaukriURL follows the site's slug scheme:
// /python-developer-jobs-in-pune-2.
func buildNaukriURL(role, location string, page int) string {
	path := slugify(role) + "-jobs"
	if loc := slugify(location); loc != "" {
		path += "-in-" + loc
	}
	if page > 1 {
		path = fmt.Sprintf("%s-%d", path, page)
	}
	query := url.Values{"k": {strings.TrimSpace(role)}}
	if loc := strings.TrimSpace(location); loc != "" {
		query.Set("l", loc)
	}
	return "https://www.naukri.com/" + path + "?" + query.Encode()
}

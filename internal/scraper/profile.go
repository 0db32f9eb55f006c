package scraper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobscrape/internal/models"
)

const (
	SiteNaukri    = "naukri"
	SiteStepstone = "stepstone"
)

// Fields maps record fields to CSS selectors on an item page. Every selector
// is optional; a field whose selector matches nothing is recorded as NA.
type Fields struct {
	Title           string
	Company         string
	Location        string
	Experience      string
	Salary          string
	Description     string
	PrimarySkills   string
	SecondarySkills string
	Additional      map[string]string
}

type Profile struct {
	Name    string
	BaseURL string
	// ListingURL builds the URL of a listing page (1-based) for role and an
	// optional location.
	ListingURL func(role, location string, page int) string
	ItemAnchor string
	NextPage   string
	Fields     Fields
	Headers    map[string]string
}

func (p Profile) ItemURLs(doc *goquery.Document, base string) []string {
	if base == "" {
		base = p.BaseURL
	}
	var out []string
	found := map[string]struct{}{}
	doc.Find(p.ItemAnchor).Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		link := absoluteURL(base, href)
		if _, ok := found[link]; ok {
			return
		}
		found[link] = struct{}{}
		out = append(out, link)
	})
	return out
}

// NextURL returns the target of the next-page control, or "" when the page
// has none or the control is disabled.
func (p Profile) NextURL(doc *goquery.Document, base string) string {
	if p.NextPage == "" {
		return ""
	}
	if base == "" {
		base = p.BaseURL
	}
	next := doc.Find(p.NextPage).First()
	if next.Length() == 0 {
		return ""
	}
	if _, disabled := next.Attr("disabled"); disabled {
		return ""
	}
	if strings.Contains(next.AttrOr("class", ""), "disabled") || next.AttrOr("aria-disabled", "") == "true" {
		return ""
	}
	href := strings.TrimSpace(next.AttrOr("href", ""))
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	return absoluteURL(base, href)
}

// ParseItem extracts one record from an item page. Missing fields fall back
// to the page's JSON-LD JobPosting and then to NA.
func (p Profile) ParseItem(doc *goquery.Document, link string) models.Record {
	ld, hasLD := jsonLDPosting(doc)
	pick := func(selector string, fallback string) string {
		if value := selectText(doc, selector); value != "" {
			return value
		}
		if hasLD && fallback != "" {
			return fallback
		}
		return models.NotAvailable
	}

	rec := models.Record{
		Title:       pick(p.Fields.Title, ld.Title),
		Company:     pick(p.Fields.Company, ld.Company),
		Location:    pick(p.Fields.Location, ld.Location),
		Experience:  pick(p.Fields.Experience, ""),
		Salary:      pick(p.Fields.Salary, ld.Salary),
		Description: pick(p.Fields.Description, ld.Description),
		JobURL:      link,
		Site:        p.Name,
		Skills: models.Skills{
			Primary:   selectList(doc, p.Fields.PrimarySkills),
			Secondary: selectList(doc, p.Fields.SecondarySkills),
		},
	}

	additional := map[string]string{}
	names := make([]string, 0, len(p.Fields.Additional))
	for name := range p.Fields.Additional {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if value := selectText(doc, p.Fields.Additional[name]); value != "" {
			additional[name] = value
		}
	}
	if hasLD {
		if ld.EmploymentType != "" {
			if _, ok := additional["employment_type"]; !ok {
				additional["employment_type"] = ld.EmploymentType
			}
		}
		if ld.DatePosted != "" {
			if ts, err := parsePostedAt(ld.DatePosted); err == nil {
				additional["posted_at"] = ts.UTC().Format("2006-01-02")
			}
		}
	}
	if len(additional) > 0 {
		rec.Additional = additional
	}
	return rec
}

func selectText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return cleanText(doc.Find(selector).First().Text())
}

func selectList(doc *goquery.Document, selector string) []string {
	if selector == "" {
		return nil
	}
	var out []string
	found := map[string]struct{}{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		value := cleanText(s.Text())
		if value == "" {
			return
		}
		key := strings.ToLower(value)
		if _, ok := found[key]; ok {
			return
		}
		found[key] = struct{}{}
		out = append(out, value)
	})
	return out
}

var profiles = map[string]Profile{
	SiteNaukri:    naukriProfile(),
	SiteStepstone: stepstoneProfile(),
}

func LookupProfile(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "www.")
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown site profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobscrape/internal/browser"
)

// fakeBrowser serves canned HTML keyed by URL.
type fakeBrowser struct {
	mu sync.Mutex

	pages       map[string]string
	navFailures map[string]int
	openErrors  map[string]error
	sessionErr  error

	sessionsOpened int
	sessionsClosed int
	itemsOpened    int
	itemsClosed    int
	navigations    []string
}

func newFakeBrowser(pages map[string]string) *fakeBrowser {
	return &fakeBrowser{
		pages:       pages,
		navFailures: map[string]int{},
		openErrors:  map[string]error{},
	}
}

func (b *fakeBrowser) NewSession(ctx context.Context) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionErr != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrSession, b.sessionErr)
	}
	b.sessionsOpened++
	return &fakeSession{b: b}, nil
}

func (b *fakeBrowser) Close() error { return nil }

func (b *fakeBrowser) doc(target string) (*goquery.Document, error) {
	b.mu.Lock()
	html, ok := b.pages[target]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("http 404: %s", target)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

type fakeSession struct {
	b   *fakeBrowser
	doc *goquery.Document
	url string
}

func (s *fakeSession) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.b.mu.Lock()
	s.b.navigations = append(s.b.navigations, target)
	if s.b.navFailures[target] > 0 {
		s.b.navFailures[target]--
		s.b.mu.Unlock()
		return errors.New("connection reset")
	}
	s.b.mu.Unlock()

	doc, err := s.b.doc(target)
	if err != nil {
		return err
	}
	s.doc, s.url = doc, target
	return nil
}

func (s *fakeSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if s.doc == nil || s.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", browser.ErrWaitTimeout, selector)
	}
	return nil
}

func (s *fakeSession) Document() (*goquery.Document, error) {
	if s.doc == nil {
		return nil, browser.ErrNoPage
	}
	return s.doc, nil
}

func (s *fakeSession) URL() string { return s.url }

func (s *fakeSession) Open(ctx context.Context, target string) (browser.Page, error) {
	s.b.mu.Lock()
	err := s.b.openErrors[target]
	s.b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	doc, err := s.b.doc(target)
	if err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	s.b.itemsOpened++
	s.b.mu.Unlock()
	return &fakePage{b: s.b, doc: doc, url: target}, nil
}

func (s *fakeSession) Close() error {
	s.b.mu.Lock()
	s.b.sessionsClosed++
	s.b.mu.Unlock()
	return nil
}

type fakePage struct {
	b   *fakeBrowser
	doc *goquery.Document
	url string
}

func (p *fakePage) URL() string                          { return p.url }
func (p *fakePage) Document() (*goquery.Document, error) { return p.doc, nil }
func (p *fakePage) Close() error {
	p.b.mu.Lock()
	p.b.itemsClosed++
	p.b.mu.Unlock()
	return nil
}

func testProfile() Profile {
	return Profile{
		Name:    "testsite",
		BaseURL: "https://jobs.test",
		ListingURL: func(role, location string, page int) string {
			u := "https://jobs.test/search/" + slugify(role)
			if loc := slugify(location); loc != "" {
				u += "/" + loc
			}
			return fmt.Sprintf("%s?page=%d", u, page)
		},
		ItemAnchor: "a.job",
		NextPage:   "a.next",
		Fields: Fields{
			Title:           "h1",
			Company:         ".company",
			Location:        ".location",
			Experience:      ".exp",
			Salary:          ".salary",
			Description:     ".desc",
			PrimarySkills:   ".skills a.must",
			SecondarySkills: ".skills a.nice",
			Additional: map[string]string{
				"industry": ".industry",
			},
		},
	}
}

func listingHTML(next string, items ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, item := range items {
		fmt.Fprintf(&b, `<li><a class="job" href="%s">job</a></li>`, item)
	}
	b.WriteString("</ul>")
	if next != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">Next</a>`, next)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func itemHTML(title, company, location string) string {
	return fmt.Sprintf(`<html><body>
<h1>%s</h1>
<div class="company">%s</div>
<span class="location">%s</span>
<div class="exp">2-5 Yrs</div>
<div class="desc">Build and run services.</div>
<div class="skills"><a class="must">Go</a><a class="must">SQL</a><a class="nice">Docker</a></div>
</body></html>`, title, company, location)
}

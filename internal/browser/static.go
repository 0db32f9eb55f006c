package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jimezsa/jobscrape/internal/network"
	"github.com/rs/zerolog"
)

type StaticOptions struct {
	Rotator *network.Rotator
	Timeout time.Duration
	Headers map[string]string
}

// Static fetches server-rendered HTML without executing scripts. Each
// session gets its own client, and with it its own cookie jar.
type Static struct {
	opts   StaticOptions
	logger zerolog.Logger
}

func NewStatic(opts StaticOptions, logger zerolog.Logger) *Static {
	return &Static{opts: opts, logger: logger.With().Str("component", "browser.static").Logger()}
}

func (s *Static) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	client, err := network.NewClient(network.ClientOptions{
		Rotator: s.opts.Rotator,
		Timeout: s.opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	s.logger.Debug().Msg("static session opened")
	return &staticSession{client: client, headers: s.opts.Headers}, nil
}

func (s *Static) Close() error {
	return nil
}

type staticSession struct {
	client  *network.Client
	headers map[string]string

	mu  sync.Mutex
	doc *goquery.Document
	url string
}

func (s *staticSession) fetch(ctx context.Context, target string) (*goquery.Document, string, error) {
	headers := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		headers[k] = v
	}
	return s.client.FetchDocument(ctx, target, headers)
}

func (s *staticSession) Navigate(ctx context.Context, target string) error {
	doc, final, err := s.fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	s.mu.Lock()
	s.doc, s.url = doc, final
	s.mu.Unlock()
	return nil
}

// WaitFor has nothing to wait on for static HTML: the selector either matched
// the fetched document or it never will.
func (s *staticSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil || doc.Find(selector).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
	}
	return nil
}

func (s *staticSession) Document() (*goquery.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNoPage
	}
	return s.doc, nil
}

func (s *staticSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *staticSession) Open(ctx context.Context, target string) (Page, error) {
	doc, final, err := s.fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return &staticPage{doc: doc, url: final}, nil
}

func (s *staticSession) Close() error {
	s.mu.Lock()
	s.doc = nil
	s.mu.Unlock()
	return nil
}

type staticPage struct {
	doc *goquery.Document
	url string
}

func (p *staticPage) URL() string { return p.url }

func (p *staticPage) Document() (*goquery.Document, error) {
	if p.doc == nil {
		return nil, ErrNoPage
	}
	return p.doc, nil
}

func (p *staticPage) Close() error {
	p.doc = nil
	return nil
}

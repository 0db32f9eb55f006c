package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

type PlaywrightOptions struct {
	Headless        bool
	NavTimeout      time.Duration
	UserAgent       string
	Locale          string
	Cookies         []Cookie
	ScrollAfterLoad bool
}

// Playwright drives a real Chromium so listings rendered client side are
// visible to the extractors. Each session is an isolated browser context.
type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    PlaywrightOptions
	logger  zerolog.Logger
}

func NewPlaywright(opts PlaywrightOptions, logger zerolog.Logger) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}

	return &Playwright{
		pw:      pw,
		browser: b,
		opts:    opts,
		logger:  logger.With().Str("component", "browser.playwright").Logger(),
	}, nil
}

func (p *Playwright) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}

	ctxOpts := playwright.BrowserNewContextOptions{}
	if p.opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(p.opts.UserAgent)
	}
	if p.opts.Locale != "" {
		ctxOpts.Locale = playwright.String(p.opts.Locale)
	}

	bctx, err := p.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}
	if cookies := optionalCookies(p.opts.Cookies); len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			p.logger.Warn().Err(err).Msg("could not add cookies")
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("%w: %w", ErrSession, err)
	}

	return &pwSession{ctx: bctx, page: page, opts: p.opts}, nil
}

func (p *Playwright) Close() error {
	var errs []error
	if p.browser != nil {
		errs = append(errs, p.browser.Close())
	}
	if p.pw != nil {
		errs = append(errs, p.pw.Stop())
	}
	return errors.Join(errs...)
}

type pwSession struct {
	ctx  playwright.BrowserContext
	page playwright.Page
	opts PlaywrightOptions
}

func (s *pwSession) Navigate(ctx context.Context, target string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := gotoPage(s.page, target, s.opts.NavTimeout); err != nil {
		return err
	}
	if s.opts.ScrollAfterLoad {
		// lazy-loaded cards only render once scrolled into view
		_, _ = s.page.Evaluate("window.scrollTo(0, document.body.scrollHeight)")
	}
	return nil
}

func (s *pwSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %s", ErrWaitTimeout, selector)
		}
		return err
	}
	return nil
}

func (s *pwSession) Document() (*goquery.Document, error) {
	return pageDocument(s.page)
}

func (s *pwSession) URL() string {
	return s.page.URL()
}

func (s *pwSession) Open(ctx context.Context, target string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tab, err := s.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := gotoPage(tab, target, s.opts.NavTimeout); err != nil {
		_ = tab.Close()
		return nil, err
	}
	return &pwPage{page: tab}, nil
}

func (s *pwSession) Close() error {
	return s.ctx.Close()
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Document() (*goquery.Document, error) {
	return pageDocument(p.page)
}

func (p *pwPage) Close() error {
	return p.page.Close()
}

func gotoPage(page playwright.Page, target string, timeout time.Duration) error {
	_, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	return nil
}

func pageDocument(page playwright.Page) (*goquery.Document, error) {
	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	if u, err := url.Parse(page.URL()); err == nil {
		doc.Url = u
	}
	return doc, nil
}

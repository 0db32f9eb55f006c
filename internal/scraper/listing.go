package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jimezsa/jobscrape/internal/backoff"
	"github.com/jimezsa/jobscrape/internal/browser"
	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/seen"
	"github.com/rs/zerolog"
)

type Options struct {
	MaxPages     int
	PerPageLimit int // 0 means no cap
	MinDelay     time.Duration
	MaxDelay     time.Duration
	WaitTimeout  time.Duration
	Retry        backoff.Policy
	// ParallelLocations extracts every location in its own goroutine and
	// session.
	ParallelLocations bool
}

func DefaultOptions() Options {
	return Options{
		MaxPages:    5,
		MinDelay:    2 * time.Second,
		MaxDelay:    5 * time.Second,
		WaitTimeout: 15 * time.Second,
		Retry:       backoff.DefaultPolicy(),
	}
}

type runState int

const (
	stateIdle runState = iota
	stateSessionStarting
	stateListingLoaded
	stateItemOpen
	stateSessionClosing
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSessionStarting:
		return "session_starting"
	case stateListingLoaded:
		return "listing_loaded"
	case stateItemOpen:
		return "item_open"
	case stateSessionClosing:
		return "session_closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type pageOutcome int

const (
	pageNext pageOutcome = iota
	pageExhausted
	pageTimedOut
	pageLimitReached
)

func (o pageOutcome) String() string {
	switch o {
	case pageNext:
		return "next"
	case pageExhausted:
		return "exhausted"
	case pageTimedOut:
		return "timed_out"
	case pageLimitReached:
		return "max_pages"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type run struct {
	role     string
	location string
	page     int
	state    runState
	seen     *seen.Set
	records  []models.Record
	logger   zerolog.Logger
}

func (r *run) enter(state runState) {
	r.logger.Debug().Str("from", r.state.String()).Str("to", state.String()).Int("page", r.page).Msg("state")
	r.state = state
}

// Listing is the Extractor for paginated listing sites: it walks listing
// pages, opens every posting and parses it with the site profile.
type Listing struct {
	profile Profile
	browser browser.Browser
	opts    Options
	logger  zerolog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewListing(profile Profile, b browser.Browser, opts Options, logger zerolog.Logger) *Listing {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 15 * time.Second
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = backoff.DefaultPolicy()
	}
	return &Listing{
		profile: profile,
		browser: b,
		opts:    opts,
		logger:  logger.With().Str("component", "extractor").Str("site", profile.Name).Logger(),
		now:     time.Now,
		sleep:   backoff.Sleep,
	}
}

func (l *Listing) Name() string {
	return l.profile.Name
}

func (l *Listing) Extract(ctx context.Context, role string, locations []string) ([]models.Record, error) {
	targets := locations
	if len(targets) == 0 {
		targets = []string{""}
	}

	var (
		records []models.Record
		err     error
	)
	if l.opts.ParallelLocations && len(targets) > 1 {
		records, err = l.extractParallel(ctx, role, targets)
	} else {
		for _, location := range targets {
			var got []models.Record
			got, err = l.extractLocation(ctx, role, location)
			if err != nil {
				break
			}
			records = append(records, got...)
		}
	}
	if err != nil {
		return nil, err
	}

	records = dedupeRecords(records)
	filtered := filterByLocation(records, locations)
	if dropped := len(records) - len(filtered); dropped > 0 {
		l.logger.Debug().Str("role", role).Int("dropped", dropped).Msg("records outside requested locations dropped")
	}
	return filtered, nil
}

func (l *Listing) extractParallel(ctx context.Context, role string, locations []string) ([]models.Record, error) {
	results := make([][]models.Record, len(locations))
	errs := make([]error, len(locations))

	var wg sync.WaitGroup
	for i, location := range locations {
		wg.Add(1)
		go func(i int, location string) {
			defer wg.Done()
			results[i], errs[i] = l.extractLocation(ctx, role, location)
		}(i, location)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	var out []models.Record
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

func (l *Listing) extractLocation(ctx context.Context, role, location string) ([]models.Record, error) {
	r := &run{
		role:     role,
		location: location,
		seen:     seen.NewSet(),
		logger:   l.logger.With().Str("role", role).Str("location", location).Logger(),
	}

	r.enter(stateSessionStarting)
	sess, err := l.browser.NewSession(ctx)
	if err != nil {
		r.enter(stateIdle)
		return nil, err
	}
	defer func() {
		r.enter(stateSessionClosing)
		if cerr := sess.Close(); cerr != nil {
			r.logger.Warn().Err(cerr).Msg("session close failed")
		}
		r.enter(stateIdle)
	}()

	r.page = 1
	current := l.profile.ListingURL(role, location, r.page)
	if err := l.navigate(ctx, sess, current); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.enter(stateListingLoaded)

		outcome, next, err := l.processPage(ctx, sess, r)
		if err != nil {
			return nil, err
		}
		if outcome == pageNext && r.page >= l.opts.MaxPages {
			outcome = pageLimitReached
		}
		if outcome != pageNext {
			r.logger.Info().Int("page", r.page).Str("outcome", outcome.String()).Int("records", len(r.records)).Int("seen", r.seen.Len()).Msg("pagination finished")
			break
		}

		if err := l.pause(ctx); err != nil {
			return nil, err
		}
		r.page++
		current = next
		if err := l.navigate(ctx, sess, current); err != nil {
			return nil, err
		}
	}

	return r.records, nil
}

func (l *Listing) navigate(ctx context.Context, sess browser.Session, target string) error {
	policy := l.opts.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		l.logger.Warn().Err(err).Str("url", target).Int("attempt", attempt).Dur("delay", delay).Msg("navigation failed, retrying")
	}
	return backoff.Do(ctx, policy, func(ctx context.Context) error {
		return sess.Navigate(ctx, target)
	})
}

func (l *Listing) processPage(ctx context.Context, sess browser.Session, r *run) (pageOutcome, string, error) {
	if err := sess.WaitFor(ctx, l.profile.ItemAnchor, l.opts.WaitTimeout); err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			r.logger.Warn().Int("page", r.page).Msg("listing did not render in time")
			return pageTimedOut, "", nil
		}
		return 0, "", err
	}

	doc, err := sess.Document()
	if err != nil {
		return 0, "", err
	}
	base := sess.URL()
	links := l.profile.ItemURLs(doc, base)
	if l.opts.PerPageLimit > 0 && len(links) > l.opts.PerPageLimit {
		links = links[:l.opts.PerPageLimit]
	}
	next := l.profile.NextURL(doc, base)

	added := 0
	for _, link := range links {
		if r.seen.Has(link) {
			continue
		}
		if err := l.pause(ctx); err != nil {
			return 0, "", err
		}

		r.enter(stateItemOpen)
		rec, err := l.extractItem(ctx, sess, link, r.role)
		r.enter(stateListingLoaded)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, "", ctxErr
			}
			r.logger.Warn().Err(err).Str("url", link).Msg("item skipped")
			continue
		}
		r.seen.Add(link)
		r.records = append(r.records, rec)
		added++
	}
	r.logger.Debug().Int("page", r.page).Int("candidates", len(links)).Int("added", added).Msg("listing page done")

	if next == "" || sameTarget(next, base) {
		return pageExhausted, "", nil
	}
	return pageNext, next, nil
}

func (l *Listing) extractItem(ctx context.Context, sess browser.Session, link, role string) (models.Record, error) {
	page, err := sess.Open(ctx, link)
	if err != nil {
		return models.Record{}, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			l.logger.Debug().Err(cerr).Str("url", link).Msg("item close failed")
		}
	}()

	doc, err := page.Document()
	if err != nil {
		return models.Record{}, err
	}
	rec := l.profile.ParseItem(doc, link)
	if key, ok := seen.Key(rec.JobURL); ok {
		rec.JobURL = key
	}
	rec.JobType = role
	rec.ScrapedAt = l.now().UTC()
	return rec, nil
}

func (l *Listing) pause(ctx context.Context) error {
	return l.sleep(ctx, backoff.Between(l.opts.MinDelay, l.opts.MaxDelay))
}

func sameTarget(a, b string) bool {
	ka, okA := seen.Key(a)
	kb, okB := seen.Key(b)
	if okA && okB {
		return ka == kb
	}
	return a == b
}

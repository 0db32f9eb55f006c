package browser

import (
	"context"
	"errors"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrSession     = errors.New("browser session unavailable")
	ErrWaitTimeout = errors.New("timed out waiting for selector")
	ErrNoPage      = errors.New("no page loaded")
)

type Browser interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Document() (*goquery.Document, error)
	URL() string
	Open(ctx context.Context, url string) (Page, error)
	Close() error
}

type Page interface {
	URL() string
	Document() (*goquery.Document, error)
	Close() error
}

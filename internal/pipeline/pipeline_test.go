package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jimezsa/jobscrape/internal/models"
	"github.com/jimezsa/jobscrape/internal/scraper"
	"github.com/jimezsa/jobscrape/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type fakeExtractor struct {
	name    string
	records map[string][]models.Record
	err     error
	panics  bool

	mu    sync.Mutex
	calls []string
}

func (f *fakeExtractor) Name() string { return f.name }

func (f *fakeExtractor) Extract(ctx context.Context, role string, locations []string) ([]models.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, role)
	f.mu.Unlock()
	if f.panics {
		panic("selector table corrupted")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records[role], nil
}

type fakeHandler struct {
	name string
	err  error

	mu    sync.Mutex
	saved map[string][]models.Record
	calls int
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) Save(ctx context.Context, records []models.Record, destination string) (models.SaveOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return models.SaveOutcome{}, h.err
	}
	if h.saved == nil {
		h.saved = map[string][]models.Record{}
	}
	h.saved[destination] = append(h.saved[destination], records...)
	return models.SaveOutcome{Inserted: len(records), Success: true}, nil
}

func rec(url string) models.Record {
	return models.Record{Title: "Engineer", Company: "Acme", Location: "Pune", JobURL: url}
}

func newTestPipeline(opts Options) *Pipeline {
	p := New(opts, zerolog.Nop())
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return p
}

func TestRunEmptyQueue(t *testing.T) {
	ex := &fakeExtractor{name: "a"}
	h := &fakeHandler{name: "csv"}

	stats, err := newTestPipeline(Options{}).Run(context.Background(), nil,
		[]scraper.Extractor{ex}, []storage.Handler{h}, map[string]string{"csv": "out.csv"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TotalRoles != 0 || stats.SuccessfulRoles != 0 || stats.FailedRoles != 0 || len(stats.Roles) != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.RunID == "" || stats.StartedAt.IsZero() {
		t.Fatalf("expected run id and start time")
	}
}

func TestRunMissingDestination(t *testing.T) {
	ex := &fakeExtractor{name: "a"}
	h := &fakeHandler{name: "csv"}

	_, err := newTestPipeline(Options{}).Run(context.Background(), []string{"role1"},
		[]scraper.Extractor{ex}, []storage.Handler{h}, map[string]string{})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !strings.Contains(cfgErr.Reason, "csv") {
		t.Fatalf("expected handler name in reason, got %q", cfgErr.Reason)
	}
	if len(ex.calls) != 0 {
		t.Fatalf("no extraction may happen before validation passes")
	}
}

func TestRunRejectsEmptyExtractorsAndHandlers(t *testing.T) {
	p := newTestPipeline(Options{})
	dest := map[string]string{"csv": "out.csv"}

	if _, err := p.Run(context.Background(), []string{"x"}, nil, []storage.Handler{&fakeHandler{name: "csv"}}, dest); !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError for no extractors, got %v", err)
	}
	if _, err := p.Run(context.Background(), []string{"x"}, []scraper.Extractor{&fakeExtractor{name: "a"}}, nil, dest); !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError for no handlers, got %v", err)
	}
}

func TestRunAllExtractorsFail(t *testing.T) {
	a := &fakeExtractor{name: "a", err: errors.New("session refused")}
	b := &fakeExtractor{name: "b", panics: true}
	h := &fakeHandler{name: "csv"}

	stats, err := newTestPipeline(Options{}).Run(context.Background(), []string{"x"},
		[]scraper.Extractor{a, b}, []storage.Handler{h}, map[string]string{"csv": "out.csv"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.FailedRoles != 1 || stats.SuccessfulRoles != 0 {
		t.Fatalf("unexpected role counts: %+v", stats)
	}
	if h.calls != 0 {
		t.Fatalf("handler must not be called when no records were extracted")
	}
	role := stats.Roles[0]
	if !role.Skipped || len(role.Errors) != 2 {
		t.Fatalf("unexpected role stats: %+v", role)
	}
	if !strings.Contains(role.Errors[1], "panic") {
		t.Fatalf("expected recovered panic in errors, got %v", role.Errors)
	}
}

func TestRunExtractorIsolation(t *testing.T) {
	a := &fakeExtractor{name: "a", err: errors.New("boom")}
	b := &fakeExtractor{name: "b", records: map[string][]models.Record{
		"x": {rec("https://example.com/1"), rec("https://example.com/2")},
	}}
	h := &fakeHandler{name: "csv"}

	stats, err := newTestPipeline(Options{}).Run(context.Background(), []string{"x"},
		[]scraper.Extractor{a, b}, []storage.Handler{h}, map[string]string{"csv": "out.csv"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if stats.TotalRecords != 2 {
		t.Fatalf("expected only b's records to count, got %d", stats.TotalRecords)
	}
	if len(h.saved["out.csv"]) != 2 {
		t.Fatalf("expected b's records to be persisted, got %d", len(h.saved["out.csv"]))
	}
	if !stats.Roles[0].Success || len(stats.Roles[0].Errors) != 1 {
		t.Fatalf("unexpected role stats: %+v", stats.Roles[0])
	}
}

func TestRunPartialHandlerFailure(t *testing.T) {
	ex := &fakeExtractor{name: "a", records: map[string][]models.Record{"x": {rec("https://example.com/1")}}}
	good := &fakeHandler{name: "csv"}
	bad := &fakeHandler{name: "postgres", err: errors.New("connection refused")}

	stats, err := newTestPipeline(Options{}).Run(context.Background(), []string{"x"},
		[]scraper.Extractor{ex}, []storage.Handler{bad, good},
		map[string]string{"csv": "out.csv", "postgres": "postgres://jobs:secret@db/jobs"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	role := stats.Roles[0]
	if !role.Success || stats.SuccessfulRoles != 1 {
		t.Fatalf("expected role success with one working handler: %+v", role)
	}
	if len(role.StorageResults) != 2 {
		t.Fatalf("expected both storage results, got %d", len(role.StorageResults))
	}
	if role.StorageResults[0].Handler != "postgres" || role.StorageResults[0].Success {
		t.Fatalf("unexpected first result: %+v", role.StorageResults[0])
	}
	if strings.Contains(role.StorageResults[0].Destination, "secret") {
		t.Fatalf("expected password to be redacted: %s", role.StorageResults[0].Destination)
	}
	if role.StorageResults[1].Handler != "csv" || !role.StorageResults[1].Success {
		t.Fatalf("unexpected second result: %+v", role.StorageResults[1])
	}
}

func TestRunParallelHandlersKeepOrder(t *testing.T) {
	ex := &fakeExtractor{name: "a", records: map[string][]models.Record{"x": {rec("https://example.com/1")}}}
	handlers := []storage.Handler{&fakeHandler{name: "h1"}, &fakeHandler{name: "h2"}, &fakeHandler{name: "h3"}}

	stats, err := newTestPipeline(Options{ParallelHandlers: true}).Run(context.Background(), []string{"x"},
		[]scraper.Extractor{ex}, handlers, map[string]string{"h1": "1", "h2": "2", "h3": "3"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, res := range stats.Roles[0].StorageResults {
		if want := handlers[i].Name(); res.Handler != want {
			t.Fatalf("result %d is %q, want %q", i, res.Handler, want)
		}
	}
}

func TestRunUnionsAndOrdersRoles(t *testing.T) {
	a := &fakeExtractor{name: "a", records: map[string][]models.Record{
		"r1": {rec("https://example.com/1"), rec("https://example.com/2")},
		"r2": {rec("https://example.com/9")},
	}}
	b := &fakeExtractor{name: "b", records: map[string][]models.Record{
		"r1": {rec("https://example.com/2/"), rec("https://example.com/3")},
	}}
	h := &fakeHandler{name: "csv"}
	var done []string

	stats, err := newTestPipeline(Options{OnRoleDone: func(rs models.RoleStats) { done = append(done, rs.Role) }}).Run(
		context.Background(), []string{"r1", "r2"},
		[]scraper.Extractor{a, b}, []storage.Handler{h}, map[string]string{"csv": "out.csv"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(done, ",") != "r1,r2" || strings.Join(a.calls, ",") != "r1,r2" {
		t.Fatalf("roles out of order: done=%v calls=%v", done, a.calls)
	}
	if stats.Roles[0].Records != 3 || stats.TotalRecords != 4 {
		t.Fatalf("unexpected record counts: %+v", stats)
	}
	if stats.Roles[0].ExtractorRecords["a"] != 2 || stats.Roles[0].ExtractorRecords["b"] != 2 {
		t.Fatalf("unexpected per-extractor counts: %v", stats.Roles[0].ExtractorRecords)
	}
	if h.calls != 2 {
		t.Fatalf("expected one save per role, got %d", h.calls)
	}
}

func TestRunCancelledBetweenRoles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ex := &fakeExtractor{name: "a", records: map[string][]models.Record{"r1": {rec("https://example.com/1")}}}
	h := &fakeHandler{name: "csv"}

	p := newTestPipeline(Options{RoleDelay: time.Second, OnRoleDone: func(models.RoleStats) { cancel() }})
	stats, err := p.Run(ctx, []string{"r1", "r2", "r3"},
		[]scraper.Extractor{ex}, []storage.Handler{h}, map[string]string{"csv": "out.csv"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !stats.Cancelled || len(stats.Roles) != 1 || stats.SuccessfulRoles != 1 {
		t.Fatalf("unexpected stats after cancel: %+v", stats)
	}
	if stats.TotalRoles != 3 {
		t.Fatalf("TotalRoles = %d, want 3", stats.TotalRoles)
	}
	if len(ex.calls) != 1 {
		t.Fatalf("expected no work after cancellation, got calls %v", ex.calls)
	}
}

func TestSnapshotDuringRun(t *testing.T) {
	ex := &fakeExtractor{name: "a", records: map[string][]models.Record{
		"r1": {rec("https://example.com/1")},
		"r2": {rec("https://example.com/2")},
	}}
	var p *Pipeline
	var seenRoles []int
	p = newTestPipeline(Options{OnRoleDone: func(models.RoleStats) {
		seenRoles = append(seenRoles, len(p.Snapshot().Roles))
	}})

	if _, err := p.Run(context.Background(), []string{"r1", "r2"},
		[]scraper.Extractor{ex}, []storage.Handler{&fakeHandler{name: "csv"}}, map[string]string{"csv": "out.csv"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seenRoles) != 2 || seenRoles[0] != 1 || seenRoles[1] != 2 {
		t.Fatalf("expected statistics to grow after every role, got %v", seenRoles)
	}
}

func TestRunMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	ok := &fakeExtractor{name: "a", records: map[string][]models.Record{"x": {rec("https://example.com/1"), rec("https://example.com/2")}}}
	bad := &fakeExtractor{name: "b", err: errors.New("boom")}

	_, err := newTestPipeline(Options{Metrics: metrics}).Run(context.Background(), []string{"x", "y"},
		[]scraper.Extractor{ok, bad}, []storage.Handler{&fakeHandler{name: "csv"}}, map[string]string{"csv": "out.csv"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.Extracted.WithLabelValues("a")); got != 2 {
		t.Fatalf("extracted{a} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ExtractorErrors.WithLabelValues("b")); got != 2 {
		t.Fatalf("extractor_errors{b} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Saved.WithLabelValues("csv", "inserted")); got != 2 {
		t.Fatalf("saved{csv,inserted} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Roles.WithLabelValues("success")); got != 1 {
		t.Fatalf("roles{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.Roles.WithLabelValues("failed")); got != 1 {
		t.Fatalf("roles{failed} = %v, want 1", got)
	}
}

func TestRunWithCSVHandlerIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.csv")
	ex := &fakeExtractor{name: "a", records: map[string][]models.Record{"x": {rec("https://example.com/1"), rec("https://example.com/2")}}}
	handlers := []storage.Handler{storage.NewCSV(zerolog.Nop())}
	dest := map[string]string{storage.NameCSV: path}

	if _, err := newTestPipeline(Options{}).Run(context.Background(), []string{"x"}, []scraper.Extractor{ex}, handlers, dest); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	stats, err := newTestPipeline(Options{}).Run(context.Background(), []string{"x"}, []scraper.Extractor{ex}, handlers, dest)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	outcome := stats.Roles[0].StorageResults[0].Outcome
	if outcome.Inserted != 0 || outcome.Duplicates != 2 {
		t.Fatalf("expected second run to insert nothing, got %+v", outcome)
	}
}

func TestRunLogsEvents(t *testing.T) {
	var buf bytes.Buffer
	ex := &fakeExtractor{name: "a", err: errors.New("boom")}
	p := New(Options{}, zerolog.New(&buf))

	if _, err := p.Run(context.Background(), []string{"x"},
		[]scraper.Extractor{ex}, []storage.Handler{&fakeHandler{name: "csv"}}, map[string]string{"csv": "out.csv"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"message":"run started"`, `"message":"extractor failed"`, `"message":"run finished"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output:\n%s", want, out)
		}
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"postgres://jobs:secret@db:5432/jobs": "postgres://jobs:xxxxx@db:5432/jobs",
		"host=db user=jobs password=secret":   "host=db user=jobs password=xxxxx",
		"data/jobs.csv":                       "data/jobs.csv",
	}
	for input, want := range cases {
		if got := redact(input); got != want {
			t.Fatalf("redact(%q) = %q, want %q", input, got, want)
		}
	}
}

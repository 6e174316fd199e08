package curator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_NoAPI(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no api base url provided")
	}
}

func TestNew_BookmarkStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := New(ctx,
		WithAPI("http://127.0.0.1:1", ""),
		WithBookmarks("127.0.0.1:1", "", 0),
	)
	if err == nil {
		t.Fatal("expected error for unreachable bookmark store")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}
	reg := prometheus.NewRegistry()
	hc := &http.Client{}
	for _, o := range []Option{
		WithAPI("http://api", "tok"),
		WithHTTPClient(hc),
		WithTimeout(5 * time.Second),
		WithRateLimit(10, 3),
		WithPageSize(50),
		WithSortOptions(SortOption{Field: "title", Label: "Title"}),
		WithPollIntervals(time.Second, 2*time.Second),
		WithMessages(Messages{SubmitFailed: "nope"}),
		WithEventBuffer(8),
		WithBookmarks("localhost:6379", "pw", time.Hour),
		WithBookmarkPrefix("x:"),
		WithLogger(slog.Default()),
		WithPrometheus(reg),
	} {
		o.apply(cfg)
	}

	if cfg.baseURL != "http://api" || cfg.token != "tok" {
		t.Errorf("api = %q %q", cfg.baseURL, cfg.token)
	}
	if cfg.httpClient != hc || cfg.timeout != 5*time.Second {
		t.Errorf("http = %v %v", cfg.httpClient, cfg.timeout)
	}
	if cfg.rps != 10 || cfg.burst != 3 {
		t.Errorf("rate = %v %d", cfg.rps, cfg.burst)
	}
	if cfg.pageSize != 50 || len(cfg.sortOptions) != 1 || cfg.eventBuffer != 8 {
		t.Errorf("session cfg = %+v", cfg)
	}
	if cfg.exportInterval != time.Second || cfg.importInterval != 2*time.Second {
		t.Errorf("intervals = %v %v", cfg.exportInterval, cfg.importInterval)
	}
	if len(cfg.bookmarkAddrs) != 1 || cfg.bookmarkTTL != time.Hour || cfg.bookmarkPrefix != "x:" {
		t.Errorf("bookmarks = %v %v %q", cfg.bookmarkAddrs, cfg.bookmarkTTL, cfg.bookmarkPrefix)
	}
	if cfg.logger == nil || cfg.metricsReg == nil {
		t.Error("expected logger and registry")
	}

	opts := sessionOptions(cfg)
	if opts.PageSize != 50 || opts.SortOptions[0].Field != "title" || opts.ExportMessages.SubmitFailed != "nope" {
		t.Errorf("session options = %+v", opts)
	}
}

func TestClient_Close_NilStore(t *testing.T) {
	c := &Client{}
	c.Close()
}

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), WithAPI(srv.URL, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	h := c.Health(context.Background())
	if h.Status != "ok" || h.Checks["api"] != "ok" {
		t.Errorf("health = %+v", h)
	}
}

func TestClient_HealthAPIDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(context.Background(), WithAPI(url, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if h := c.Health(context.Background()); h.Status != "error" {
		t.Errorf("status = %q, want error", h.Status)
	}
}

func TestClient_BookmarksDisabled(t *testing.T) {
	c, err := New(context.Background(), WithAPI("http://api", ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ids, err := c.SavedViews(context.Background(), "repo")
	if err != nil || ids != nil {
		t.Errorf("SavedViews = %v, %v", ids, err)
	}
	if err := c.ForgetView(context.Background(), "repo", "v1"); err != nil {
		t.Errorf("ForgetView: %v", err)
	}
	if _, err := c.ResumeView(context.Background(), "repo", ""); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
	obs.event("v", Event{Kind: EventSearchApplied})
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("update_facet", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("update_facet", time.Now(), errors.New("fail"))
	obs.event("v", Event{Kind: EventSearchApplied})

	if got := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("update_facet", "ok")); got != 1 {
		t.Errorf("ok operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.metrics.operations.WithLabelValues("update_facet", "error")); got != 1 {
		t.Errorf("error operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(obs.metrics.events.WithLabelValues(string(EventSearchApplied))); got != 1 {
		t.Errorf("events = %v, want 1", got)
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.metrics.operations != second.metrics.operations {
		t.Error("expected the registered counter to be reused")
	}
}

func TestObserver_WithLogger(t *testing.T) {
	obs, err := newObserver(slog.Default(), nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	obs.observe("test.op", time.Now(), nil)
	obs.observe("test.op", time.Now(), errors.New("test error"))
	obs.event("v", Event{Kind: EventSearchFailed, Error: "boom"})
}

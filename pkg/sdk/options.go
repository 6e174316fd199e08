package curator

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	rps        float64
	burst      int

	pageSize       int
	sortOptions    []SortOption
	exportInterval time.Duration
	importInterval time.Duration
	messages       Messages
	eventBuffer    int

	bookmarkAddrs    []string
	bookmarkPassword string
	bookmarkTTL      time.Duration
	bookmarkPrefix   string

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithAPI sets the content API base URL and bearer token. Required.
func WithAPI(baseURL, token string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = baseURL
		c.token = token
	})
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithTimeout bounds every API call. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithRateLimit caps outbound API calls. Default: unlimited.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return optionFunc(func(c *clientConfig) {
		c.rps = requestsPerSecond
		c.burst = burst
	})
}

// WithPageSize sets the number of items per search page. Default: 20.
func WithPageSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.pageSize = size
	})
}

// WithSortOptions replaces the sort menu. The first option is the default.
func WithSortOptions(opts ...SortOption) Option {
	return optionFunc(func(c *clientConfig) {
		c.sortOptions = opts
	})
}

// WithPollIntervals sets the export status and import listing intervals.
// Defaults: 1s and 3s.
func WithPollIntervals(export, imports time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.exportInterval = export
		c.importInterval = imports
	})
}

// WithMessages overrides the user-visible export messages. Empty fields keep
// the defaults.
func WithMessages(m Messages) Option {
	return optionFunc(func(c *clientConfig) {
		c.messages = m
	})
}

// WithEventBuffer sets how many undelivered events a view keeps before
// dropping new ones. Default: 64.
func WithEventBuffer(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.eventBuffer = n
	})
}

// WithBookmarks persists each view's query string in Valkey or Redis so a
// view can be resumed by id. ttl <= 0 keeps bookmarks for 30 days.
func WithBookmarks(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.bookmarkAddrs = []string{addr}
		c.bookmarkPassword = password
		c.bookmarkTTL = ttl
	})
}

// WithBookmarkPrefix namespaces bookmark keys. Default: "curator:".
func WithBookmarkPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.bookmarkPrefix = prefix
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

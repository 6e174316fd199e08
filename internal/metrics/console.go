package metrics

import "github.com/prometheus/client_golang/prometheus"

// Console Prometheus metrics.
var (
	SearchRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "search_refresh_total",
			Help:      "Search refreshes by outcome",
		},
		[]string{"outcome"}, // applied / stale / error / cancelled
	)

	SearchRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "curator",
			Name:      "search_refresh_duration_seconds",
			Help:      "Search request round trip in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	PageClampsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "search_page_clamps_total",
			Help:      "Requested pages rewritten because they exceeded the page count",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "api_requests_total",
			Help:      "Requests to the content API by operation and status",
		},
		[]string{"op", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "curator",
			Name:      "api_request_duration_seconds",
			Help:      "Content API request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op"},
	)

	PollChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "task_poll_checks_total",
			Help:      "Task status checks issued by polling flows",
		},
		[]string{"flow"},
	)

	TaskOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "task_outcomes_total",
			Help:      "Terminal task states reached per flow",
		},
		[]string{"flow", "state"},
	)

	ImportDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "import_task_deletions_total",
			Help:      "Deletions of finished import tasks",
		},
		[]string{"result"}, // "ok" / "error"
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "curator",
			Name:      "session_events_dropped_total",
			Help:      "View session events dropped because the stream buffer was full",
		},
	)
)

var consoleMetricsRegistered bool

// RegisterConsoleMetrics registers the console metrics. Must be called once from main.
func RegisterConsoleMetrics() {
	if consoleMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRefreshTotal)
	prometheus.MustRegister(SearchRefreshDuration)
	prometheus.MustRegister(PageClampsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PollChecksTotal)
	prometheus.MustRegister(TaskOutcomesTotal)
	prometheus.MustRegister(ImportDeletionsTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpInFlight)
	consoleMetricsRegistered = true
}

package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stakewell",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stakewell",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stakewell",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stakewell",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Total number of ledger entries appended, by entry type.",
		},
		[]string{"type"},
	)

	insufficientBalance = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stakewell",
			Subsystem: "ledger",
			Name:      "insufficient_balance_total",
			Help:      "Total number of mutations rejected for insufficient balance.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stakewell",
			Subsystem: "contracts",
			Name:      "settlements_total",
			Help:      "Total number of contract settlements, by outcome.",
		},
		[]string{"outcome"},
	)

	duplicateWebhooks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stakewell",
			Subsystem: "payments",
			Name:      "duplicate_events_total",
			Help:      "Total number of webhook deliveries suppressed as duplicates.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerEntries,
		insufficientBalance,
		settlements,
		duplicateWebhooks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordLedgerEntry counts an appended ledger entry.
func RecordLedgerEntry(entryType string) {
	if entryType == "" {
		entryType = "unknown"
	}
	ledgerEntries.WithLabelValues(entryType).Inc()
}

// RecordInsufficientBalance counts a rejected mutation.
func RecordInsufficientBalance() {
	insufficientBalance.Inc()
}

// RecordSettlement counts a contract settlement by outcome.
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
}

// RecordDuplicateWebhook counts a suppressed duplicate delivery.
func RecordDuplicateWebhook() {
	duplicateWebhooks.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "wallets", "contracts", "submissions", "gamify":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}

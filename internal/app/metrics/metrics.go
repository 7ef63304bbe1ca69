package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	domain "github.com/R3E-Network/yield_ledger/internal/app/domain/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yield_ledger"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome. result is ok or the error kind.",
		},
		[]string{"op", "result"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations including the handler call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	guardRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "guard_rejections_total",
			Help:      "Calls rejected because another ledger operation was in flight.",
		},
	)

	totalValueLocked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_value_locked",
			Help:      "Sum of all participant balances.",
		},
	)

	invariantViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "invariant_violations_total",
			Help:      "Audits that found the committed state inconsistent.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		ledgerDuration,
		guardRejections,
		totalValueLocked,
		invariantViolations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Ledger records ledger outcomes. It satisfies the vault service observer and
// the auditor's violation recorder.
type Ledger struct{}

// ObserveOperation counts the operation by result and records its latency.
func (Ledger) ObserveOperation(op string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
		if e, ok := domain.AsError(err); ok {
			result = e.Kind
		}
		if errors.Is(err, domain.ErrGuardAlreadyHeld) {
			guardRejections.Inc()
		}
	}
	ledgerOperations.WithLabelValues(op, result).Inc()
	ledgerDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetTVL publishes the total value locked.
func (Ledger) SetTVL(tvl uint64) {
	totalValueLocked.Set(float64(tvl))
}

// IncInvariantViolation counts a failed audit.
func (Ledger) IncInvariantViolation() {
	invariantViolations.Inc()
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

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket event stream upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// canonicalPath collapses identifiers so label cardinality stays bounded:
// /v1/accounts/N... becomes /v1/accounts/:id.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "v1" || len(parts) < 2 {
		return "/" + parts[0]
	}
	out := []string{"v1", parts[1]}
	if parts[1] == "admin" {
		if len(parts) > 2 {
			out = append(out, parts[2])
		}
		if len(parts) > 3 {
			out = append(out, ":id")
		}
		if len(parts) > 4 {
			out = append(out, parts[4])
		}
		return "/" + strings.Join(out, "/")
	}
	if len(parts) > 2 {
		if parts[1] == "events" && parts[2] == "stream" {
			out = append(out, "stream")
		} else {
			out = append(out, ":id")
		}
	}
	return "/" + strings.Join(out, "/")
}

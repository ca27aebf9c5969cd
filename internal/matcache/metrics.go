package matcache

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics is the default Metrics implementation, wiring the four
// series §6 names: mat-cache-errors, mat-cache-retry-failed,
// mat-cache-sync, mat-cache-entries.
type PrometheusMetrics struct {
	errorsTotal      *prometheus.CounterVec
	retryFailedTotal *prometheus.CounterVec
	syncSeconds      *prometheus.HistogramVec
	entries          prometheus.Gauge
}

// NewPrometheusMetrics registers the mat-cache series against reg (use
// prometheus.DefaultRegisterer in production; a fresh prometheus.NewRegistry
// in tests avoids duplicate-registration panics across test cases).
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if namespace == "" {
		namespace = "matcache"
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mat_cache",
				Name:      "errors_total",
				Help:      "Expansion failures, tagged by reason class and whether the source was down.",
			},
			[]string{"reason_class", "source_down"},
		),
		retryFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mat_cache",
				Name:      "retry_failed_total",
				Help:      "Entries escalated to FAILED after exhausting their retry window.",
			},
			[]string{"reason_class", "source_down"},
		),
		syncSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mat_cache",
				Name:      "sync_seconds",
				Help:      "Duration of a full refresh pass.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"initial"},
		),
		entries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mat_cache",
				Name:      "entries",
				Help:      "Current number of entries in the snapshot.",
			},
		),
	}
}

// IncError records an expansion failure. Nil-safe so a Cache built without
// a metrics sink never needs a nil check at the call site.
func (m *PrometheusMetrics) IncError(reasonClass string, sourceDown bool) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(reasonClass, strconv.FormatBool(sourceDown)).Inc()
}

// IncRetryFailed records a terminal escalation.
func (m *PrometheusMetrics) IncRetryFailed(reasonClass string, sourceDown bool) {
	if m == nil {
		return
	}
	m.retryFailedTotal.WithLabelValues(reasonClass, strconv.FormatBool(sourceDown)).Inc()
}

// ObserveSync records one refresh pass's duration.
func (m *PrometheusMetrics) ObserveSync(seconds float64, initial bool) {
	if m == nil {
		return
	}
	m.syncSeconds.WithLabelValues(strconv.FormatBool(initial)).Observe(seconds)
}

// SetEntries publishes the current snapshot size.
func (m *PrometheusMetrics) SetEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}

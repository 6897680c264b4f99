package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eventpush/internal/publish"
)

// MetricsCollector receives dispatcher measurements.
type MetricsCollector interface {
	RecordCycle(report CycleReport, duration time.Duration)
	RecordPush(reason publish.Reason, duration time.Duration)
	RecordPending(n int)
}

// NoOpMetrics is used when metrics aren't needed.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordCycle(CycleReport, time.Duration)   {}
func (NoOpMetrics) RecordPush(publish.Reason, time.Duration) {}
func (NoOpMetrics) RecordPending(int)                        {}

// PrometheusMetrics implements MetricsCollector with client_golang collectors.
type PrometheusMetrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	events        *prometheus.CounterVec
	pushes        *prometheus.CounterVec
	pushDuration  prometheus.Histogram
	pending       prometheus.Gauge
	lastCycle     prometheus.Gauge
}

// NewPrometheusMetrics registers the dispatcher collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventpush", Subsystem: "dispatcher", Name: "cycles_total",
			Help: "Completed scan cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventpush", Subsystem: "dispatcher", Name: "cycle_duration_seconds",
			Help:    "Duration of a scan cycle including pushes.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventpush", Subsystem: "dispatcher", Name: "events_total",
			Help: "Events seen by the dispatcher by outcome.",
		}, []string{"outcome"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventpush", Subsystem: "publish", Name: "attempts_total",
			Help: "Push attempts by result reason.",
		}, []string{"reason"}),
		pushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventpush", Subsystem: "publish", Name: "duration_seconds",
			Help:    "Push request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventpush", Subsystem: "dispatcher", Name: "pending_events",
			Help: "Unsent events at the end of the last cycle.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventpush", Subsystem: "dispatcher", Name: "last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.cycleDuration, m.events, m.pushes, m.pushDuration, m.pending, m.lastCycle)
	}
	return m
}

func (m *PrometheusMetrics) RecordCycle(r CycleReport, d time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.events.WithLabelValues("sent").Add(float64(r.Sent))
	m.events.WithLabelValues("failed").Add(float64(r.Failed))
	m.events.WithLabelValues("not_due").Add(float64(r.Skipped))
	m.events.WithLabelValues("invalid").Add(float64(r.Invalid))
	m.events.WithLabelValues("vanished").Add(float64(r.Vanished))
	m.lastCycle.Set(float64(r.Finished.Unix()))
}

func (m *PrometheusMetrics) RecordPush(reason publish.Reason, d time.Duration) {
	m.pushes.WithLabelValues(string(reason)).Inc()
	if reason != publish.ReasonNotConfigured {
		m.pushDuration.Observe(d.Seconds())
	}
}

func (m *PrometheusMetrics) RecordPending(n int) { m.pending.Set(float64(n)) }

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics. A nil *Metrics is a no-op so
// components can run without instrumentation in tests.
type Metrics struct {
	SecurityEvents   *prometheus.CounterVec
	HardLocks        *prometheus.CounterVec
	SessionsOpened   prometheus.Counter
	OpenFailures     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	TelemetryDropped prometheus.Counter
	WatermarkPlans   prometheus.Counter
	OpenDuration     prometheus.Histogram
}

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SecurityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docguard_security_events_total",
			Help: "Security events logged against sessions, by kind",
		}, []string{"kind"}),
		HardLocks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docguard_hard_locks_total",
			Help: "Sessions hard-locked, by lock reason",
		}, []string{"reason"}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "docguard_sessions_opened_total",
			Help: "Sessions that reached Active",
		}),
		OpenFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docguard_session_open_failures_total",
			Help: "Session opens that failed, by error code",
		}, []string{"code"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docguard_sessions_open",
			Help: "Sessions currently held by the agent",
		}),
		TelemetryDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "docguard_telemetry_dropped_total",
			Help: "Telemetry records dropped because the sink was saturated",
		}),
		WatermarkPlans: factory.NewCounter(prometheus.CounterOpts{
			Name: "docguard_watermark_plans_total",
			Help: "Watermark plans computed",
		}),
		OpenDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docguard_session_open_duration_seconds",
			Help:    "Time from open request to Active, covering issue, download and verify",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncSecurityEvent(kind string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncHardLock(reason string) {
	if m == nil {
		return
	}
	m.HardLocks.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSessionsOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

func (m *Metrics) IncOpenFailure(code string) {
	if m == nil {
		return
	}
	m.OpenFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) SessionAdded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionRemoved() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) IncTelemetryDropped() {
	if m == nil {
		return
	}
	m.TelemetryDropped.Inc()
}

func (m *Metrics) IncWatermarkPlans() {
	if m == nil {
		return
	}
	m.WatermarkPlans.Inc()
}

func (m *Metrics) ObserveOpenDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.OpenDuration.Observe(d.Seconds())
}

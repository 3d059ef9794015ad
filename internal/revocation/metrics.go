package revocation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Metrics tracks revocation notification outcomes.
type Metrics struct {
	Outcomes            *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers the revocation metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docguard_revocation_notifications_total",
			Help: "Revocation notifications by outcome (sent, failed)",
		}, []string{"outcome"}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docguard_revocation_circuit_breaker_state",
			Help: "Revocation circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

// Package metrics exposes uplink connectivity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mash-protocol/mash-uplink/pkg/link"
	"github.com/mash-protocol/mash-uplink/pkg/session"
)

// Attempt outcome label values.
const (
	OutcomeEstablished      = "established"
	OutcomeTransportFailure = "transport_failure"
	OutcomeHandshakeFailure = "handshake_failure"
	OutcomeOther            = "other"
)

const namespace = "uplink"

// Metrics holds the uplink collectors.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// AssociationState is the current link.AssociationState value.
	AssociationState prometheus.Gauge

	// LinkTransitions counts association state entries by state.
	LinkTransitions *prometheus.CounterVec

	// StackReady is 1 once the readiness gate has opened.
	StackReady prometheus.Gauge

	// StackPolls counts readiness polls until the gate opened.
	StackPolls prometheus.Counter

	// SessionState is the current session.State value.
	SessionState prometheus.Gauge

	// Attempts counts finished attempts by outcome.
	Attempts *prometheus.CounterVec

	// AttemptDuration observes attempt plus serve time.
	AttemptDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg. If reg is nil,
// metrics are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssociationState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "association_state",
			Help:      "Current association state (0 disconnected, 1 connecting, 2 connected)",
		}),
		LinkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "transitions_total",
			Help:      "Association state transitions by new state",
		}, []string{"state"}),
		StackReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stack",
			Name:      "ready",
			Help:      "Whether the network stack has a live link and an IPv4 address",
		}),
		StackPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stack",
			Name:      "polls_total",
			Help:      "Readiness polls performed before the stack became usable",
		}),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Current attempt state (0 idle to 4 established, 5 failed)",
		}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "attempts_total",
			Help:      "Finished session attempts by outcome",
		}, []string{"outcome"}),
		AttemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of session attempts including application exchange",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AssociationState,
			m.LinkTransitions,
			m.StackReady,
			m.StackPolls,
			m.SessionState,
			m.Attempts,
			m.AttemptDuration,
		)
	}
	return m
}

// ObserveAssociation records an association state change.
func (m *Metrics) ObserveAssociation(_, newState link.AssociationState) {
	if m == nil {
		return
	}
	m.AssociationState.Set(float64(newState))
	m.LinkTransitions.WithLabelValues(newState.String()).Inc()
}

// ObserveStackReady records that the readiness gate opened after polls polls.
func (m *Metrics) ObserveStackReady(polls int) {
	if m == nil {
		return
	}
	m.StackReady.Set(1)
	m.StackPolls.Add(float64(polls))
}

// ObserveSessionState records a session state change.
func (m *Metrics) ObserveSessionState(_, newState session.State) {
	if m == nil {
		return
	}
	m.SessionState.Set(float64(newState))
}

// ObserveAttempt records a finished attempt.
func (m *Metrics) ObserveAttempt(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(Outcome(err)).Inc()
	m.AttemptDuration.Observe(d.Seconds())
}

// Outcome maps an attempt error to its label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeEstablished
	case errors.Is(err, session.ErrTransport):
		return OutcomeTransportFailure
	case errors.Is(err, session.ErrHandshake):
		return OutcomeHandshakeFailure
	default:
		return OutcomeOther
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

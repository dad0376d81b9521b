package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes reported by visitrack_requests_total.
const (
	OutcomeTracked  = "tracked"
	OutcomeBanned   = "banned"
	OutcomeIgnored  = "ignored"
	OutcomeExcluded = "excluded"
	OutcomeSkipped  = "skipped"
)

// Metrics holds the tracker's Prometheus collectors.
type Metrics struct {
	requests *prometheus.CounterVec
	created  prometheus.Counter
	swept    prometheus.Counter
	reloads  *prometheus.CounterVec
}

// NewMetrics creates the tracker collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitrack",
			Name:      "requests_total",
			Help:      "Requests seen by the tracker, by outcome.",
		}, []string{"outcome"}),
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: "visitrack",
			Name:      "visitors_created_total",
			Help:      "Visitors created.",
		}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: "visitrack",
			Name:      "sweep_deleted_total",
			Help:      "Inactive visitors deleted by sweeps.",
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitrack",
			Name:      "exclusion_reloads_total",
			Help:      "Exclusion snapshot reloads, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) visitorCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) sweptVisitors(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Metrics) reloaded(kind string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(kind).Inc()
}

// Requests returns the request counter for the given outcome.
func (m *Metrics) Requests(outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(outcome)
}

// VisitorsCreated returns the visitor creation counter.
func (m *Metrics) VisitorsCreated() prometheus.Counter {
	return m.created
}

// SweptVisitors returns the counter of visitors removed by sweeps.
func (m *Metrics) SweptVisitors() prometheus.Counter {
	return m.swept
}

// Reloads returns the reload counter for "bans" or "agents".
func (m *Metrics) Reloads(kind string) prometheus.Counter {
	return m.reloads.WithLabelValues(kind)
}

// Package metrics exposes the engine's Prometheus counters.
//
// All methods are nil-safe so components can run without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors owned by the session and invite engine.
type Metrics struct {
	routingDecisions *prometheus.CounterVec
	redemptions      *prometheus.CounterVec
	redirectsRefused *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
	keyMode          *prometheus.GaugeVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		routingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tavern",
			Name:      "routing_decisions_total",
			Help:      "Routing decisions returned to route guards.",
		}, []string{"decision"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tavern",
			Name:      "invite_redemptions_total",
			Help:      "Invite redemption attempts by terminal outcome.",
		}, []string{"outcome", "reason"}),
		redirectsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tavern",
			Name:      "redirects_refused_total",
			Help:      "Redirects refused by the loop guard.",
		}, []string{"route"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tavern",
			Name:      "localstore_errors_total",
			Help:      "Local store failures degraded to cache misses.",
		}, []string{"op"}),
		keyMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tavern",
			Name:      "localstore_key_mode",
			Help:      "1 for the active local store key mode.",
		}, []string{"mode"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tavern",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Local API request latency by route pattern.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route", "class"}),
	}

	for _, c := range []prometheus.Collector{
		m.routingDecisions, m.redemptions, m.redirectsRefused, m.storeErrors, m.keyMode, m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RoutingDecision counts one routing decision.
func (m *Metrics) RoutingDecision(decision string) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(decision).Inc()
}

// Redemption counts one redemption outcome; reason is empty unless it failed.
func (m *Metrics) Redemption(outcome, reason string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome, reason).Inc()
}

// RedirectRefused counts a redirect the loop guard blocked.
func (m *Metrics) RedirectRefused(route string) {
	if m == nil {
		return
	}
	m.redirectsRefused.WithLabelValues(route).Inc()
}

// StoreError counts a local store failure for op (get, set, remove, clear, decrypt).
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// KeyMode marks mode as the active key mode.
func (m *Metrics) KeyMode(mode string) {
	if m == nil {
		return
	}
	m.keyMode.Reset()
	m.keyMode.WithLabelValues(mode).Set(1)
}

// HTTPRequest observes one local API request. route must be a mux pattern,
// never a raw path.
func (m *Metrics) HTTPRequest(route, class string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, class).Observe(d.Seconds())
}

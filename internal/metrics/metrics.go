// Package metrics exposes Prometheus counters for the auth flows.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"session-auth/pkg/apierror"
)

// Recorder is what the gate and the services report to. A nil Recorder is
// replaced by Nop.
type Recorder interface {
	RecordGateOutcome(outcome string)
	RecordRefresh(outcome string)
	RecordIdentityResolution(match string)
	RecordLogin(provider string, outcome string)
	ObserveSessionStore(op string, duration time.Duration, err error)
}

type Collector struct {
	gateOutcomes        *prometheus.CounterVec
	refreshOutcomes     *prometheus.CounterVec
	identityResolutions *prometheus.CounterVec
	logins              *prometheus.CounterVec
	sessionStoreLatency *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_auth_gate_outcomes_total",
			Help: "Authentication gate decisions by outcome.",
		}, []string{"outcome"}),
		refreshOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_auth_refresh_total",
			Help: "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		identityResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_auth_identity_resolutions_total",
			Help: "OAuth identity resolutions by match kind.",
		}, []string{"match"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_auth_logins_total",
			Help: "Login attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		sessionStoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "session_auth_session_store_seconds",
			Help:    "Session store round-trip latency.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op", "result"}),
	}

	reg.MustRegister(
		c.gateOutcomes,
		c.refreshOutcomes,
		c.identityResolutions,
		c.logins,
		c.sessionStoreLatency,
	)

	return c
}

// WatchDroppedEvents exports a counter read from dropped at scrape time.
func WatchDroppedEvents(reg prometheus.Registerer, dropped func() uint64) {
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "session_auth_audit_events_dropped_total",
		Help: "Events the audit subscriber missed because its buffer was full.",
	}, func() float64 { return float64(dropped()) }))
}

func (c *Collector) RecordGateOutcome(outcome string) {
	c.gateOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordRefresh(outcome string) {
	c.refreshOutcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordIdentityResolution(match string) {
	c.identityResolutions.WithLabelValues(match).Inc()
}

func (c *Collector) RecordLogin(provider string, outcome string) {
	c.logins.WithLabelValues(provider, outcome).Inc()
}

func (c *Collector) ObserveSessionStore(op string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.sessionStoreLatency.WithLabelValues(op, result).Observe(duration.Seconds())
}

// Outcome turns an error into a low-cardinality label: "ok" for nil, the
// APIError code when there is one, "internal" otherwise.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "internal"
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type Nop struct{}

func (Nop) RecordGateOutcome(string)                         {}
func (Nop) RecordRefresh(string)                             {}
func (Nop) RecordIdentityResolution(string)                  {}
func (Nop) RecordLogin(string, string)                       {}
func (Nop) ObserveSessionStore(string, time.Duration, error) {}

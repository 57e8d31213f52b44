package observability

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayOnce     sync.Once
	gatewayRegistry *GatewayMetrics
)

// GatewayMetrics captures the activity of the lending gateway: state
// refreshes against the chain, action submissions, and the account's
// current health factor.
type GatewayMetrics struct {
	refreshes      *prometheus.CounterVec
	refreshLatency *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec
	requests       *prometheus.CounterVec
	healthFactor   prometheus.Gauge
}

// Gateway returns the lazily-initialised singleton metrics registry.
func Gateway() *GatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &GatewayMetrics{
			refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cngnlend",
				Subsystem: "syncer",
				Name:      "refreshes_total",
				Help:      "State refreshes segmented by scope and outcome.",
			}, []string{"scope", "outcome"}),
			refreshLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cngnlend",
				Subsystem: "syncer",
				Name:      "refresh_duration_seconds",
				Help:      "Latency distribution for state refreshes.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"scope"}),
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cngnlend",
				Subsystem: "gate",
				Name:      "actions_total",
				Help:      "Action submissions segmented by kind and outcome tag.",
			}, []string{"action", "outcome"}),
			actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cngnlend",
				Subsystem: "gate",
				Name:      "action_duration_seconds",
				Help:      "End-to-end latency from submission to confirmed refresh.",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"action"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cngnlend",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			healthFactor: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cngnlend",
				Subsystem: "position",
				Name:      "health_factor",
				Help:      "Current health factor of the tracked position, WAD descaled.",
			}),
		}
		prometheus.MustRegister(
			gatewayRegistry.refreshes,
			gatewayRegistry.refreshLatency,
			gatewayRegistry.actions,
			gatewayRegistry.actionLatency,
			gatewayRegistry.requests,
			gatewayRegistry.healthFactor,
		)
	})
	return gatewayRegistry
}

// ObserveRefresh records one refresh attempt. Scope should be a stable
// string ("protocol", "user", "balances") so dashboards stay consistent.
func (m *GatewayMetrics) ObserveRefresh(scope string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if scope == "" {
		scope = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.refreshes.WithLabelValues(scope, outcome).Inc()
	m.refreshLatency.WithLabelValues(scope).Observe(duration.Seconds())
}

// ObserveAction records the outcome of a submitted action.
func (m *GatewayMetrics) ObserveAction(action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.actionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveRequest records one gateway HTTP request.
func (m *GatewayMetrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, fmt.Sprintf("%d", status)).Inc()
}

// SetHealthFactor publishes the tracked position's health factor. The
// sentinel for debt-free positions is clipped to keep the gauge finite.
func (m *GatewayMetrics) SetHealthFactor(healthFactor, scale *big.Int) {
	if m == nil || healthFactor == nil || scale == nil || scale.Sign() == 0 {
		return
	}
	value, _ := new(big.Rat).SetFrac(healthFactor, scale).Float64()
	const ceiling = 1e6
	if value > ceiling {
		value = ceiling
	}
	m.healthFactor.Set(value)
}

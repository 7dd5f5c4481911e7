// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "partner_gateway"

// Rate limit decisions.
const (
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
	DecisionFailOpen = "fail_open"
)

// Webhook delivery outcomes.
const (
	DeliveryDelivered = "delivered"
	DeliveryExhausted = "exhausted"
	DeliverySkipped   = "skipped"
	DeliveryDropped   = "dropped"
)

type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	AuthOutcomes       *prometheus.CounterVec
	WebhookDeliveries  *prometheus.CounterVec
	WebhookAttempts    *prometheus.CounterVec
	WorkerQueueDepth   prometheus.Gauge
	HTTPDuration       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit decisions by identity scope and outcome.",
		}, []string{"scope", "decision"}),
		AuthOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "API key authentication outcomes.",
		}, []string{"method", "outcome"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by event and outcome.",
		}, []string{"event", "outcome"}),
		WebhookAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Individual webhook HTTP attempts by event.",
		}, []string{"event"}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_depth",
			Help:      "Tasks waiting in the background worker queue.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.RateLimitDecisions,
		m.AuthOutcomes,
		m.WebhookDeliveries,
		m.WebhookAttempts,
		m.WorkerQueueDepth,
		m.HTTPDuration,
	)
	return m
}

// NewUnregistered returns collectors bound to a private registry, for tests and
// components constructed without a server.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

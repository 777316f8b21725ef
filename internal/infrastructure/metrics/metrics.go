// Package metrics exposes Prometheus collectors for the authentication layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopify_admin_auth"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	authentications *prometheus.CounterVec
	tokenRequests   *prometheus.CounterVec
	tokenLatency    *prometheus.HistogramVec
	afterAuthHooks  *prometheus.CounterVec
	botRejections   prometheus.Counter
	webhooks        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Admin request authentications by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_requests_total",
			Help:      "Requests to the shop OAuth token endpoint by grant and result.",
		}, []string{"grant", "result"}),
		tokenLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_request_duration_seconds",
			Help:      "Latency of requests to the shop OAuth token endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"grant"}),
		afterAuthHooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "after_auth_hooks_total",
			Help:      "After-authentication hook executions by result.",
		}, []string{"result"}),
		botRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_rejections_total",
			Help:      "Requests rejected because the user agent is a bot.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Received webhooks by topic and result.",
		}, []string{"topic", "result"}),
	}

	if reg != nil {
		reg.MustRegister(m.authentications, m.tokenRequests, m.tokenLatency, m.afterAuthHooks, m.botRejections, m.webhooks)
	}
	return m
}

// Authentication records the outcome of one admin authentication
func (m *Metrics) Authentication(strategy, outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(strategy, outcome).Inc()
}

// TokenRequest records one call to the token endpoint
func (m *Metrics) TokenRequest(grant string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.tokenRequests.WithLabelValues(grant, result).Inc()
	m.tokenLatency.WithLabelValues(grant).Observe(elapsed.Seconds())
}

// AfterAuthHook records one execution of the after-auth hook
func (m *Metrics) AfterAuthHook(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.afterAuthHooks.WithLabelValues(result).Inc()
}

// BotRejected records a request refused with 410
func (m *Metrics) BotRejected() {
	if m == nil {
		return
	}
	m.botRejections.Inc()
}

// Webhook records one received webhook. result is "processed", "ignored", "rejected" or "error".
func (m *Metrics) Webhook(topic, result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(topic, result).Inc()
}

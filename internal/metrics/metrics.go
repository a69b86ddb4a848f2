// SPDX-FileCopyrightText: © 2025 Olivier Meunier <olivier@neokraft.net>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics provides the server's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authzbridge"

// Denial kinds.
const (
	DeniedByACL       = "acl"
	DeniedByPredicate = "predicate"
)

// Metrics holds a registry and the collectors it exposes.
type Metrics struct {
	Registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	denials        *prometheus.CounterVec
	securedScopes  prometheus.Gauge
	authentication *prometheus.CounterVec
}

// New creates a [Metrics] with its own registry, so several servers can
// live in one process.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of HTTP requests by status code and method.",
		}, []string{"code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
		denials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "denials_total",
			Help:      "Count of refused authorizations by kind.",
		}, []string{"kind"}),
		securedScopes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "authz",
			Name:      "secured_scopes",
			Help:      "Number of ACL scopes in the registry.",
		}),
		authentication: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Count of failed authentications.",
		}, []string{"provider"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.denials,
		m.securedScopes,
		m.authentication,
	)

	// Known labels show up with a zero value before the first event.
	m.denials.WithLabelValues(DeniedByACL)
	m.denials.WithLabelValues(DeniedByPredicate)

	return m
}

// Middleware counts requests and measures their duration.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.requests,
		promhttp.InstrumentHandlerDuration(m.duration, next),
	)
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry: m.Registry,
	})
}

// Denied counts a refused authorization.
func (m *Metrics) Denied(kind string) {
	m.denials.WithLabelValues(kind).Inc()
}

// AuthenticationFailed counts a rejected authentication.
func (m *Metrics) AuthenticationFailed(provider string) {
	m.authentication.WithLabelValues(provider).Inc()
}

// SetSecuredScopes sets the number of registered ACL scopes.
func (m *Metrics) SetSecuredScopes(n int) {
	m.securedScopes.Set(float64(n))
}

package core

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	LoginAttempts   *prometheus.CounterVec
	Signups         *prometheus.CounterVec
	AgendaMutations *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olive",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olive",
			Name:      "signups_total",
			Help:      "Signup attempts by outcome.",
		}, []string{"outcome"}),
		AgendaMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "olive",
			Name:      "agenda_mutations_total",
			Help:      "Agenda add/edit/delete operations by outcome.",
		}, []string{"op", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "olive",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_class"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.LoginAttempts,
		m.Signups,
		m.AgendaMutations,
		m.RequestDuration,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// mutationOutcome maps an agenda service error to a metrics label.
func mutationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isStorageError(err):
		return "storage_error"
	default:
		return "rejected"
	}
}

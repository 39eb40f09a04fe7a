// Package metrics holds the Prometheus collectors for medication safety
// decisions. All Record methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medsafety"

type Metrics struct {
	InteractionChecks *prometheus.CounterVec
	OverrideLookups   *prometheus.CounterVec
	OverridesCreated  prometheus.Counter
	BatchChecks       prometheus.Counter
	BatchDuration     prometheus.Histogram
	Verifications     *prometheus.CounterVec
	SafetyBlocks      prometheus.Counter
	Administrations   *prometheus.CounterVec
	AuditFailures     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		InteractionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interaction_checks_total",
			Help:      "Interaction checks by kind and outcome",
		}, []string{"kind", "outcome"}),
		OverrideLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "override_lookups_total",
			Help:      "Override lookups for detected interactions by result (none, applied, expired)",
		}, []string{"result"}),
		OverridesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overrides_created_total",
			Help:      "Interaction overrides created",
		}),
		BatchChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_checks_total",
			Help:      "Batch interaction checks performed",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_check_duration_seconds",
			Help:      "Batch interaction check duration",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Five-rights verifications by outcome and reason",
		}, []string{"outcome", "reason"}),
		SafetyBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_blocks_total",
			Help:      "Administrations blocked by a severe interaction",
		}),
		Administrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "administrations_total",
			Help:      "Administration records written by status",
		}, []string{"status"}),
		AuditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be delivered",
		}, []string{"event_type"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.InteractionChecks,
		m.OverrideLookups,
		m.OverridesCreated,
		m.BatchChecks,
		m.BatchDuration,
		m.Verifications,
		m.SafetyBlocks,
		m.Administrations,
		m.AuditFailures,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) RecordCheck(kind, outcome string) {
	if m == nil {
		return
	}
	m.InteractionChecks.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordOverrideLookup(result string) {
	if m == nil {
		return
	}
	m.OverrideLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordOverrideCreated() {
	if m == nil {
		return
	}
	m.OverridesCreated.Inc()
}

func (m *Metrics) RecordBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.BatchChecks.Inc()
	m.BatchDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordVerification(outcome, reason string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) RecordSafetyBlock() {
	if m == nil {
		return
	}
	m.SafetyBlocks.Inc()
}

func (m *Metrics) RecordAdministration(status string) {
	if m == nil {
		return
	}
	m.Administrations.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAuditFailure(eventType string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(eventType).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests by their route template, not the raw path, to
// keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

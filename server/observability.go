package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andy-wilson/thermostat_dashboard/assistant"
	"github.com/andy-wilson/thermostat_dashboard/dashboard"
)

// Metrics holds the Prometheus collectors of one server instance.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	llmDuration       prometheus.Histogram
	llmErrors         prometheus.Counter
	healthy           prometheus.Gauge
	rateLimited       prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Histogram of language model request durations.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		llmErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llm_request_errors_total",
			Help: "Total language model requests that failed.",
		}),
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thermostat_healthy",
			Help: "1 when the last health classification was healthy, 0 otherwise.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total requests rejected by the per-client rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.llmDuration,
		m.llmErrors,
		m.healthy,
		m.rateLimited,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Middleware records request counts and latency labelled with the matched
// route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry:           m.registry,
		DisableCompression: true,
	})
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ObserveHealth records the overall state of a health report.
func (m *Metrics) ObserveHealth(report dashboard.HealthReport) {
	if m == nil {
		return
	}
	if report.Overall == dashboard.OverallHealthy {
		m.healthy.Set(1)
	} else {
		m.healthy.Set(0)
	}
}

// observedModel times every completion against the language model.
type observedModel struct {
	assistant.Model
	metrics *Metrics
}

func (o observedModel) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	answer, err := o.Model.Complete(ctx, prompt)
	o.metrics.llmDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.llmErrors.Inc()
	}
	return answer, err
}

// observedHealth feeds every computed health report into the gauge.
type observedHealth struct {
	dash    *dashboard.Service
	metrics *Metrics
}

func (o observedHealth) Health(ctx context.Context) (dashboard.HealthReport, error) {
	report, err := o.dash.Health(ctx)
	if err == nil {
		o.metrics.ObserveHealth(report)
	}
	return report, err
}

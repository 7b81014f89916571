// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/blogql/internal/eventbus"
	events "github.com/hanpama/blogql/internal/events"
)

const namespace = "blogql"

type Metrics struct {
	reg *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	errorCodes      *prometheus.CounterVec
	loaderBatchSize *prometheus.HistogramVec
	loaderMissing   *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_operations_total",
			Help:      "GraphQL operations by type and result.",
		}, []string{"type", "result"}),
		errorCodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_errors_total",
			Help:      "GraphQL errors by extension code.",
		}, []string{"code"}),
		loaderBatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_batch_size",
			Help:      "Distinct keys per loader fetch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"loader"}),
		loaderMissing: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_missing_keys_total",
			Help:      "Keys a loader fetch returned no entity for.",
		}, []string{"loader"}),
		dbQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "SQL statement latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"result"}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Subscribe feeds the collectors from the global bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(e.Request.Method, strconv.Itoa(e.Status)).Inc()
			m.httpDuration.WithLabelValues(e.Request.Method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			m.operations.WithLabelValues(opType(e.OperationType), result(len(e.Errors) == 0)).Inc()
			for _, code := range e.Codes {
				if code == "" {
					code = "NONE"
				}
				m.errorCodes.WithLabelValues(code).Inc()
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.LoaderBatch) {
			m.loaderBatchSize.WithLabelValues(e.Loader).Observe(float64(e.Keys))
			if e.Missing > 0 {
				m.loaderMissing.WithLabelValues(e.Loader).Add(float64(e.Missing))
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.Query) {
			m.dbQueryDuration.WithLabelValues(result(e.Err == nil)).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func opType(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

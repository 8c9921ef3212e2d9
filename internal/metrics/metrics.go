// Package metrics holds the Prometheus collectors of the service.
//
// Collectors live on their own registry rather than the global one, so tests
// can build as many servers as they like without duplicate registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPDuration *prometheus.HistogramVec // method, route, status

	CacheLookups       *prometheus.CounterVec // result: hit | miss
	SideEffectFailures *prometheus.CounterVec // kind: email | event

	Tasks        *prometheus.CounterVec // result: success | failed | panic
	TaskDuration prometheus.Histogram
	TaskWait     prometheus.Histogram
	QueueSize    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avatar_cache_lookups_total",
			Help: "Avatar lookups by cache result.",
		}, []string{"result"}),
		SideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "side_effect_failures_total",
			Help: "Failed fire-and-forget side effects by kind.",
		}, []string{"kind"}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_tasks_total",
			Help: "Tasks run by the worker pool by result.",
		}, []string{"result"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Duration of task execution in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		TaskWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_task_wait_seconds",
			Help:    "Time a task spends in the queue before execution in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worker_queue_size",
			Help: "Current size of the task queue.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPDuration,
		m.CacheLookups,
		m.SideEffectFailures,
		m.Tasks,
		m.TaskDuration,
		m.TaskWait,
		m.QueueSize,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry        *prometheus.Registry
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	activeJobs      prometheus.Gauge
	fallbacksTotal  prometheus.Counter
	webhookFailures prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tryonflow_worker_jobs_total",
			Help: "Total try-on task runs by strategy and outcome.",
		}, []string{"strategy", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tryonflow_worker_job_duration_seconds",
			Help:    "Duration of each try-on task run.",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"strategy", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tryonflow_worker_active_jobs",
			Help: "Current number of try-on jobs being processed.",
		}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tryonflow_worker_fallbacks_total",
			Help: "Jobs that succeeded only after an earlier strategy failed.",
		}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tryonflow_worker_webhook_failures_total",
			Help: "Webhook notifications that could not be delivered.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.fallbacksTotal,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

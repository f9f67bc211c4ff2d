// Package metrics exposes pipeline counters over Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mathvideo"

type Metrics struct {
	registry         *prometheus.Registry
	tasks            *prometheus.CounterVec
	renderAttempts   *prometheus.CounterVec
	modelCalls       *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	subscribers      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Generation tasks by terminal status.",
		}, []string{"status"}),
		renderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_attempts_total",
			Help:      "Render subprocess invocations by result.",
		}, []string{"result"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model gateway calls by provider, kind and result.",
		}, []string{"provider", "kind", "result"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of full pipeline runs.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400},
		}, []string{"status"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Live event stream subscribers.",
		}),
	}
	m.registry.MustRegister(
		m.tasks, m.renderAttempts, m.modelCalls, m.pipelineDuration, m.subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(status).Inc()
}

func (m *Metrics) RenderAttempt(ok bool) {
	if m == nil {
		return
	}
	m.renderAttempts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ModelCall(provider, kind string, ok bool) {
	if m == nil {
		return
	}
	m.modelCalls.WithLabelValues(provider, kind, result(ok)).Inc()
}

func (m *Metrics) PipelineFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

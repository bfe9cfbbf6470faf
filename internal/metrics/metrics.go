// Package metrics exposes issuance counters and timings to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kartei"

type Metrics struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	composeDuration  *prometheus.HistogramVec
	templateCache    *prometheus.CounterVec
	commitConflicts  prometheus.Counter
	blobDeletions    *prometheus.CounterVec
	pendingDeletions prometheus.Gauge
	templateUpdates  *prometheus.CounterVec
	taskRuns         *prometheus.HistogramVec
}

// New creates a metrics set on its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_requests_total",
			Help:      "Artifact requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		composeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compose_duration_seconds",
			Help:      "Time spent rendering an artifact",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),
		templateCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_cache_lookups_total",
			Help:      "Template cache lookups by result",
		}, []string{"result"}),
		commitConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_commit_conflicts_total",
			Help:      "Artifact pointer updates that lost a compare-and-swap",
		}),
		blobDeletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_deletions_total",
			Help:      "Blob deletions of superseded renders by result",
		}, []string{"result"}),
		pendingDeletions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blob_pending_deletions",
			Help:      "Blobs waiting for a deletion retry",
		}),
		templateUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "template_updates_total",
			Help:      "Template updates by kind and outcome",
		}, []string{"kind", "outcome"}),
		taskRuns: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_run_duration_seconds",
			Help:      "Background task runs by task and outcome",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"task", "outcome"}),
	}
	reg.MustRegister(
		m.requests,
		m.composeDuration,
		m.templateCache,
		m.commitConflicts,
		m.blobDeletions,
		m.pendingDeletions,
		m.templateUpdates,
		m.taskRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ArtifactRequest(kind, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCompose(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.composeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) TemplateCacheHit() {
	if m == nil {
		return
	}
	m.templateCache.WithLabelValues("hit").Inc()
}

func (m *Metrics) TemplateCacheMiss() {
	if m == nil {
		return
	}
	m.templateCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) CommitConflict() {
	if m == nil {
		return
	}
	m.commitConflicts.Inc()
}

func (m *Metrics) BlobDeletion(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.blobDeletions.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPendingDeletions(n int) {
	if m == nil {
		return
	}
	m.pendingDeletions.Set(float64(n))
}

func (m *Metrics) TemplateUpdate(kind, outcome string) {
	if m == nil {
		return
	}
	m.templateUpdates.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) TaskRun(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.taskRuns.WithLabelValues(task, outcome).Observe(d.Seconds())
}

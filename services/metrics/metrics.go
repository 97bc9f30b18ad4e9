// Package metricsvc exposes the domain counters to prometheus.
package metricsvc

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/academia/core"
)

type Metrics struct {
	registry      *prometheus.Registry
	conflicts     *prometheus.CounterVec
	sweeps        prometheus.Counter
	sweepItems    *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

var _ core.Metrics = (*Metrics)(nil)

// New registers the collectors on a dedicated registry, along with the go and process collectors.
func New(conf *core.Config) *Metrics {
	ns := "academia"
	labels := prometheus.Labels{"env": conf.Env}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "lecture_conflicts_total",
			Help:        "Lecture writes rejected because of an overlapping lecture.",
			ConstLabels: labels,
		}, []string{"scope"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "status_sweeps_total",
			Help:        "Completed coursework status sweeps.",
			ConstLabels: labels,
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "status_sweep_items_total",
			Help:        "Work items visited by the status sweep, by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "status_sweep_duration_seconds",
			Help:        "Duration of the coursework status sweeps.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.conflicts, m.sweeps, m.sweepItems, m.sweepDuration,
	)
	return m
}

func (m *Metrics) ConflictDetected(scope string) {
	m.conflicts.WithLabelValues(scope).Inc()
}

func (m *Metrics) SweepCompleted(scanned, changed, failed int, took float64) {
	m.sweeps.Inc()
	m.sweepItems.WithLabelValues("unchanged").Add(float64(scanned - changed - failed))
	m.sweepItems.WithLabelValues("changed").Add(float64(changed))
	m.sweepItems.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(took)
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Package metrics exposes document activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector groups the document metrics. Register it with any registerer;
// a nil *Collector is valid and records nothing.
type Collector struct {
	Recomputes      prometheus.Counter
	ModelsAttached  prometheus.Counter
	ModelsDetached  prometheus.Counter
	ReachableModels prometheus.Gauge
	ChangeEvents    *prometheus.CounterVec
	PatchesApplied  prometheus.Counter
	PatchesFailed   prometheus.Counter
	PatchEvents     prometheus.Histogram
	EventsForwarded prometheus.Counter
}

func NewCollector(namespace string) *Collector {
	return &Collector{
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_recomputes_total",
			Help:      "Reachable-model recomputations.",
		}),
		ModelsAttached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_models_attached_total",
			Help:      "Models attached to a document by a recompute.",
		}),
		ModelsDetached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_models_detached_total",
			Help:      "Models detached from a document by a recompute.",
		}),
		ReachableModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "document_reachable_models",
			Help:      "Models reachable from the roots after the last recompute.",
		}),
		ChangeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_change_events_total",
			Help:      "Change events emitted, by kind.",
		}, []string{"kind"}),
		PatchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_applied_total",
			Help:      "Patches applied successfully.",
		}),
		PatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_failed_total",
			Help:      "Patches rejected before or during application.",
		}),
		PatchEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "patch_events",
			Help:      "Events per applied patch.",
			Buckets:   []float64{1, 2, 5, 10, 50, 100, 1000},
		}),
		EventsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ui_events_forwarded_total",
			Help:      "UI events handed to the transport.",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.all() {
		m.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.all() {
		m.Collect(ch)
	}
}

func (c *Collector) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.Recomputes, c.ModelsAttached, c.ModelsDetached, c.ReachableModels,
		c.ChangeEvents, c.PatchesApplied, c.PatchesFailed, c.PatchEvents, c.EventsForwarded,
	}
}

func (c *Collector) ObserveRecompute(attached, detached, reachable int) {
	if c == nil {
		return
	}
	c.Recomputes.Inc()
	c.ModelsAttached.Add(float64(attached))
	c.ModelsDetached.Add(float64(detached))
	c.ReachableModels.Set(float64(reachable))
}

func (c *Collector) ObserveChange(kind string) {
	if c == nil {
		return
	}
	c.ChangeEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) ObservePatch(events int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.PatchesFailed.Inc()
		return
	}
	c.PatchesApplied.Inc()
	c.PatchEvents.Observe(float64(events))
}

func (c *Collector) ObserveForward() {
	if c == nil {
		return
	}
	c.EventsForwarded.Inc()
}

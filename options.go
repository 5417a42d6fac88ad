package modelsync

import (
	"github.com/modelsync/modelsync/pkg/connection"
	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/modelsync/modelsync/pkg/metrics"
	"github.com/modelsync/modelsync/pkg/models"
)

// RecomputeStats describes one recomputation of the reachable-model set.
type RecomputeStats struct {
	Attached  int
	Detached  int
	Reachable int
}

type Option func(d *Document)

func WithLogger(l logger.Logger) Option {
	return func(d *Document) {
		d.logger = l
	}
}

// WithRegistry sets the registry used to instantiate models received from
// a peer.
func WithRegistry(r *models.Registry) Option {
	return func(d *Document) {
		d.registry = r
	}
}

// WithTransport forwards UI events and published patches to t.
func WithTransport(t connection.Transport) Option {
	return func(d *Document) {
		d.events.transport = t
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(d *Document) {
		d.metrics = c
	}
}

// WithRecomputeHook calls fn after every recomputation of the reachable set.
func WithRecomputeHook(fn func(RecomputeStats)) Option {
	return func(d *Document) {
		d.recomputeHook = fn
	}
}

func WithTitle(title string) Option {
	return func(d *Document) {
		d.title = title
	}
}

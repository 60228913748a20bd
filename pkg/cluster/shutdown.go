package cluster

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Drainer coordinates graceful shutdown of a node across its
// registered components, per the sequence: mark draining, release
// leaderships, stop accepting new work and wait for in-flight work to
// finish (bounded by timeout), deregister.
type Drainer struct {
	registry *Registry
	electors []*Elector
	log      *slog.Logger

	// Drain is called once status has been set to draining; it should
	// stop accepting new work (e.g. pause a job worker's poll loop)
	// and return once in-flight work has settled or ctx expires.
	Drain func(ctx context.Context) error
}

// DrainerOption configures a Drainer.
type DrainerOption func(*Drainer)

func WithDrainerLogger(l *slog.Logger) DrainerOption {
	return func(d *Drainer) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDrainer builds a drain coordinator for a node's registry and the
// set of electors it participates in.
func NewDrainer(registry *Registry, electors []*Elector, opts ...DrainerOption) *Drainer {
	d := &Drainer{registry: registry, electors: electors}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// Shutdown runs the drain sequence, bounded by timeout. Errors from
// individual steps are logged but do not abort the sequence: a stuck
// component should not prevent the node from deregistering.
func (d *Drainer) Shutdown(ctx context.Context, timeout time.Duration) error {
	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if d.registry != nil {
		if err := d.registry.SetStatus(drainCtx, StatusDraining); err != nil {
			d.log.ErrorContext(drainCtx, "shutdown: set draining failed", slog.Any("error", err))
		}
	}

	for _, e := range d.electors {
		e.Stop()
		e.release(context.Background())
	}

	if d.Drain != nil {
		if err := d.Drain(drainCtx); err != nil {
			d.log.WarnContext(drainCtx, "shutdown: drain did not complete cleanly", slog.Any("error", err))
		}
	}

	if d.registry != nil {
		d.registry.Stop()
		if err := d.registry.Deregister(context.Background()); err != nil {
			d.log.ErrorContext(ctx, "shutdown: deregister failed", slog.Any("error", err))
			return err
		}
	}

	return nil
}

package reactor

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// InvalidationConfig tunes debounce/coalesce behavior.
type InvalidationConfig struct {
	// Debounce is how long a subscription must go unchanged before it
	// is flushed for re-execution.
	Debounce time.Duration
	// MaxDebounce bounds total wait even under continuous writes, so a
	// hot table can't starve its subscribers indefinitely.
	MaxDebounce time.Duration
	// MaxBuffer forces an immediate flush of everything pending once
	// this many subscriptions are queued, bounding memory under a
	// write storm.
	MaxBuffer int
}

// DefaultInvalidationConfig mirrors the original runtime's defaults.
func DefaultInvalidationConfig() InvalidationConfig {
	return InvalidationConfig{Debounce: 50 * time.Millisecond, MaxDebounce: 200 * time.Millisecond, MaxBuffer: 10_000}
}

type pendingInvalidation struct {
	subID       string
	firstChange time.Time
	lastChange  time.Time
}

// Invalidator buffers incoming changes per affected subscription and
// releases a subscription ID for re-execution once its debounce window
// has elapsed, so a burst of writes to one table collapses into one
// push instead of one per row.
type Invalidator struct {
	reg   *Registry
	cfg   InvalidationConfig
	clock clockwork.Clock

	mu      sync.Mutex
	pending map[string]*pendingInvalidation
}

func NewInvalidator(reg *Registry, cfg InvalidationConfig, clock clockwork.Clock) *Invalidator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Invalidator{reg: reg, cfg: cfg, clock: clock, pending: make(map[string]*pendingInvalidation)}
}

// Process records change against every subscription it affects. It
// returns subscription IDs whose MaxBuffer was hit and therefore must
// be flushed immediately, bypassing debounce.
func (inv *Invalidator) Process(change Change) []string {
	affected := inv.reg.FindAffected(change)
	if len(affected) == 0 {
		return nil
	}

	now := inv.clock.Now()
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, sub := range affected {
		p, ok := inv.pending[sub.ID]
		if !ok {
			p = &pendingInvalidation{subID: sub.ID, firstChange: now}
			inv.pending[sub.ID] = p
		}
		p.lastChange = now
	}

	if len(inv.pending) >= inv.cfg.MaxBuffer {
		return inv.flushLocked()
	}
	return nil
}

// CheckPending returns subscription IDs whose debounce window (or max
// debounce ceiling) has elapsed, removing them from the pending set.
func (inv *Invalidator) CheckPending() []string {
	now := inv.clock.Now()
	inv.mu.Lock()
	defer inv.mu.Unlock()

	var ready []string
	for id, p := range inv.pending {
		if now.Sub(p.lastChange) >= inv.cfg.Debounce || now.Sub(p.firstChange) >= inv.cfg.MaxDebounce {
			ready = append(ready, id)
			delete(inv.pending, id)
		}
	}
	return ready
}

// FlushAll force-releases every pending subscription immediately.
func (inv *Invalidator) FlushAll() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.flushLocked()
}

func (inv *Invalidator) flushLocked() []string {
	ready := make([]string, 0, len(inv.pending))
	for id := range inv.pending {
		ready = append(ready, id)
	}
	inv.pending = make(map[string]*pendingInvalidation)
	return ready
}

func (inv *Invalidator) PendingCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.pending)
}

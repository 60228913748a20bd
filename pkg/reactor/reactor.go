package reactor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
)

// QueryInfo declares which tables a registered query touches, standing
// in for read-set inference integrated with a real query layer
// (spec.md §9, left to the implementer). A query's ReadSet is seeded
// from this mapping at subscribe time; a later Registry.RecordExecution
// call replaces it with the read set passed there.
type QueryInfo struct {
	Name   string
	Tables []string
}

// Ready is what the reactor hands to pkg/gateway once a subscription's
// invalidation window has elapsed: just enough to re-run the query (or
// pick up the job/workflow row) and push a fresh payload.
type Ready struct {
	Subscription *Subscription
	// Resync is true when this readiness came from a listener
	// reconnect rather than a tracked change. On a reconnect every
	// pending subscription is released with Resync set; pkg/gateway
	// does not read the flag and re-runs each such subscription like
	// any other Ready.
	Resync bool
}

// Reactor wires the change listener, subscription registry, adaptive
// tracker, and invalidation debouncer into one component (spec.md
// §4.8). It owns no network transport: pkg/gateway subscribes callers
// via Registry and drains Ready events from Reactor.Ready().
type Reactor struct {
	pool     *pgxpool.Pool
	listener *Listener
	reg      *Registry
	adaptive *AdaptiveTracker
	inv      *Invalidator
	invCfg   InvalidationConfig
	log      *slog.Logger
	clock    clockwork.Clock

	queriesMu sync.RWMutex
	queries   map[string]QueryInfo

	ready chan Ready

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// Option configures a Reactor.
type Option func(*Reactor)

func WithLogger(log *slog.Logger) Option {
	return func(r *Reactor) { r.log = log }
}

func WithClock(clock clockwork.Clock) Option {
	return func(r *Reactor) { r.clock = clock }
}

func WithAdaptiveConfig(cfg AdaptiveConfig) Option {
	return func(r *Reactor) { r.adaptive = NewAdaptiveTracker(cfg) }
}

func WithInvalidationConfig(cfg InvalidationConfig) Option {
	return func(r *Reactor) { r.invCfg = cfg }
}

// New builds a Reactor. pool must be non-nil.
func New(pool *pgxpool.Pool, opts ...Option) (*Reactor, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	listener, err := NewListener(pool)
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		pool:     pool,
		listener: listener,
		reg:      NewRegistry(),
		adaptive: NewAdaptiveTracker(DefaultAdaptiveConfig()),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:    clockwork.NewRealClock(),
		queries:  make(map[string]QueryInfo),
		ready:    make(chan Ready, 1024),
		invCfg:   DefaultInvalidationConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.inv = NewInvalidator(r.reg, r.invCfg, r.clock)
	return r, nil
}

// RegisterQuery declares the tables a query reads, used to seed new
// subscriptions' read sets.
func (r *Reactor) RegisterQuery(info QueryInfo) {
	r.queriesMu.Lock()
	defer r.queriesMu.Unlock()
	r.queries[info.Name] = info
}

// Ready returns the channel of subscriptions due for re-execution.
func (r *Reactor) Ready() <-chan Ready { return r.ready }

// Subscribe registers a new query subscription, seeding its read set
// from the query's declared tables.
func (r *Reactor) Subscribe(sessionID, queryName string, args json.RawMessage) (*Subscription, error) {
	r.queriesMu.RLock()
	info, ok := r.queries[queryName]
	r.queriesMu.RUnlock()
	if !ok {
		return nil, ErrUnknownQuery
	}

	sub := r.reg.Subscribe(sessionID, queryName, args)
	rs := NewReadSet()
	for _, t := range info.Tables {
		rs.AddTable(t)
		r.adaptive.RecordSubscription(t, nil)
	}
	r.reg.RecordExecution(sub.ID, rs)
	return sub, nil
}

// SubscribeJob registers interest in a single job.
func (r *Reactor) SubscribeJob(sessionID, jobID string) *Subscription {
	return r.reg.SubscribeJob(sessionID, jobID)
}

// SubscribeWorkflow registers interest in a single workflow run.
func (r *Reactor) SubscribeWorkflow(sessionID, runID string) *Subscription {
	return r.reg.SubscribeWorkflow(sessionID, runID)
}

// Unsubscribe removes a single subscription by ID.
func (r *Reactor) Unsubscribe(subID string) {
	r.reg.Unsubscribe(subID)
}

// RemoveSession drops every subscription for a disconnected session
// and releases its adaptive-tracking accounting.
func (r *Reactor) RemoveSession(sessionID string) {
	for _, sub := range r.reg.RemoveSession(sessionID) {
		if sub.Kind == KindQuery {
			for table := range sub.ReadSet.Tables {
				r.adaptive.RemoveSubscription(table, nil)
			}
		}
	}
}

// Run drives the listener, invalidation debounce loop, and job/workflow
// entity dispatch until ctx is canceled.
func (r *Reactor) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		if err := r.listener.Run(runCtx); err != nil {
			r.log.Error("reactor: listener stopped", "error", err)
		}
	}()

	ticker := r.clock.NewTicker(r.invCfg.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case ev := <-r.listener.Events():
			r.handleEvent(ev)
		case <-ticker.Chan():
			r.flushReady(r.inv.CheckPending())
		}
	}
}

func (r *Reactor) handleEvent(ev Event) {
	if ev.Resync {
		r.flushAllResync()
		return
	}
	if ev.Change == nil {
		return
	}

	change := *ev.Change

	// Job and workflow subscriptions are keyed on entity ID, not on the
	// adaptive per-table tracker (that only governs query read sets), so
	// they dispatch unconditionally on a matching row.
	if jobSubs := r.reg.SubscriptionsForJob(change.RowID); change.Table == "jobs" && len(jobSubs) > 0 {
		r.flushSubs(jobSubs, false)
	}
	if runSubs := r.reg.SubscriptionsForWorkflow(change.RowID); (change.Table == "workflow_runs" || change.Table == "workflow_steps") && len(runSubs) > 0 {
		r.flushSubs(runSubs, false)
	}

	if !r.adaptive.ShouldInvalidate(change.Table, change.RowID) {
		return
	}
	immediate := r.inv.Process(change)
	r.flushReady(immediate)
}

func (r *Reactor) flushAllResync() {
	for _, subID := range r.inv.FlushAll() {
		if sub, ok := r.reg.Get(subID); ok {
			r.push(Ready{Subscription: sub, Resync: true})
		}
	}
}

func (r *Reactor) flushReady(ids []string) {
	for _, subID := range ids {
		if sub, ok := r.reg.Get(subID); ok {
			r.push(Ready{Subscription: sub})
		}
	}
}

func (r *Reactor) flushSubs(subs []*Subscription, resync bool) {
	for _, sub := range subs {
		r.push(Ready{Subscription: sub, Resync: resync})
	}
}

func (r *Reactor) push(ready Ready) {
	select {
	case r.ready <- ready:
	default:
		r.log.Warn("reactor: ready buffer full, dropping invalidation", "subscription_id", ready.Subscription.ID)
	}
}

// Stop halts the reactor and its listener.
func (r *Reactor) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.listener.Stop()
	r.started = false
}

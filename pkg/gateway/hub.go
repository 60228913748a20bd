package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/id"
	"github.com/dmitrymomot/forge/pkg/jobqueue"
	"github.com/dmitrymomot/forge/pkg/reactor"
	"github.com/dmitrymomot/forge/pkg/workflow"
)

// QueryFunc re-executes a registered query for the given args. This is
// the seam spec.md §1 calls out as an external collaborator ("individual
// user-written queries... are replaceable skins over the core"): the
// gateway only knows how to invalidate and re-invoke, never how to
// query.
type QueryFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Hub owns every live Session on this node and the single goroutine
// that drains the Reactor's readiness channel, mirroring the
// register/unregister/broadcast event-loop shape used throughout this
// tree (pkg/cron, pkg/workflow's schedulers, and the agenterm example's
// WebSocket hub this package is grounded on).
type Hub struct {
	pool     *pgxpool.Pool
	sessions *sessionStore
	reactor  *reactor.Reactor
	jobs     *jobqueue.Queue
	wf       *workflow.Executor
	nodeID   string
	log      *slog.Logger

	queriesMu sync.RWMutex
	queries   map[string]QueryFunc

	mu   sync.RWMutex
	live map[string]*Session

	cancel context.CancelFunc
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// New builds a Hub. pool, reactorInst, jobs and wf must be non-nil.
func New(pool *pgxpool.Pool, reactorInst *reactor.Reactor, jobs *jobqueue.Queue, wf *workflow.Executor, nodeID string, opts ...Option) (*Hub, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	h := &Hub{
		pool:     pool,
		sessions: &sessionStore{pool: pool},
		reactor:  reactorInst,
		jobs:     jobs,
		wf:       wf,
		nodeID:   nodeID,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		queries:  make(map[string]QueryFunc),
		live:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// RegisterQuery declares a named query: the tables it reads (fed to
// the Reactor for invalidation) and the function that re-executes it.
func (h *Hub) RegisterQuery(name string, tables []string, fn QueryFunc) {
	h.reactor.RegisterQuery(reactor.QueryInfo{Name: name, Tables: tables})
	h.queriesMu.Lock()
	defer h.queriesMu.Unlock()
	h.queries[name] = fn
}

// Run drains the Reactor's readiness channel until ctx is canceled,
// pushing a fresh payload to whichever session owns each ready
// subscription.
func (h *Hub) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	defer cancel()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case ready, ok := <-h.reactor.Ready():
			if !ok {
				return nil
			}
			h.deliver(runCtx, ready)
		}
	}
}

// Stop halts the hub's readiness loop. It does not close live
// sessions; the caller's graceful shutdown sequence does that by
// canceling each connection's own context.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) deliver(ctx context.Context, ready reactor.Ready) {
	sess := h.sessionFor(ready.Subscription.SessionID)
	if sess == nil {
		return
	}
	clientID, ok := sess.clientIDFor(ready.Subscription.ID)
	if !ok {
		return
	}

	switch ready.Subscription.Kind {
	case reactor.KindJob:
		h.pushJob(ctx, sess, clientID, ready.Subscription.EntityID)
	case reactor.KindWorkflow:
		h.pushWorkflow(ctx, sess, clientID, ready.Subscription.EntityID)
	case reactor.KindQuery:
		h.pushQuery(ctx, sess, clientID, ready.Subscription)
	}
}

func (h *Hub) pushQuery(ctx context.Context, sess *Session, clientID string, sub *reactor.Subscription) {
	h.queriesMu.RLock()
	fn, ok := h.queries[sub.QueryName]
	h.queriesMu.RUnlock()
	if !ok {
		h.send(sess, errorMessage(clientID, CodeUnknownFunction, "unknown function"))
		return
	}

	data, err := fn(ctx, sub.Args)
	if err != nil {
		h.log.ErrorContext(ctx, "gateway: query re-execution failed", slog.String("function", sub.QueryName), slog.Any("error", err))
		h.send(sess, errorMessage(clientID, CodeQueryFailed, "query failed"))
		return
	}
	h.send(sess, dataMessage(clientID, data))
}

func (h *Hub) pushJob(ctx context.Context, sess *Session, clientID, jobID string) {
	job, err := h.jobs.Get(ctx, jobID)
	if err != nil {
		if ferrors.Is(err, ferrors.KindNotFound) {
			return
		}
		h.log.ErrorContext(ctx, "gateway: job lookup failed", slog.String("job_id", jobID), slog.Any("error", err))
		return
	}
	h.send(sess, jobUpdateMessage(clientID, JobData{
		JobID:           job.ID,
		Status:          string(job.Status),
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		Output:          job.Output,
		Error:           job.LastError,
	}))
}

func (h *Hub) pushWorkflow(ctx context.Context, sess *Session, clientID, runID string) {
	run, err := h.wf.GetRun(ctx, runID)
	if err != nil {
		if ferrors.Is(err, ferrors.KindNotFound) {
			return
		}
		h.log.ErrorContext(ctx, "gateway: workflow lookup failed", slog.String("run_id", runID), slog.Any("error", err))
		return
	}
	h.send(sess, workflowUpdateMessage(clientID, WorkflowData{
		WorkflowID:  run.ID,
		Status:      string(run.Status),
		CurrentStep: run.CurrentStep,
		Output:      run.Output,
		Error:       run.Error,
	}))
}

func (h *Hub) send(sess *Session, msg []byte) {
	if !sess.push(msg) {
		h.log.Warn("gateway: session send buffer full, dropping message", slog.String("session_id", sess.ID))
	}
}

func (h *Hub) sessionFor(sessionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live[sessionID]
}

// connect registers a new session, persists its sessions row, and
// returns it. Callers (the WebSocket upgrade handler) must call
// disconnect when the connection closes.
func (h *Hub) connect(ctx context.Context) (*Session, error) {
	sess := newSession(h.nodeID)
	if err := h.sessions.insert(ctx, sess); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.live[sess.ID] = sess
	h.mu.Unlock()
	return sess, nil
}

func (h *Hub) disconnect(ctx context.Context, sess *Session) {
	h.mu.Lock()
	delete(h.live, sess.ID)
	h.mu.Unlock()

	h.reactor.RemoveSession(sess.ID)
	if err := h.sessions.remove(ctx, sess.ID); err != nil {
		h.log.ErrorContext(ctx, "gateway: remove session failed", slog.Any("error", err))
	}
}

func newClientID() string { return id.New() }

package forge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/forge/pkg/cluster"
	"github.com/dmitrymomot/forge/pkg/cron"
	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/gateway"
	"github.com/dmitrymomot/forge/pkg/health"
	"github.com/dmitrymomot/forge/pkg/id"
	"github.com/dmitrymomot/forge/pkg/jobqueue"
	"github.com/dmitrymomot/forge/pkg/reactor"
	"github.com/dmitrymomot/forge/pkg/workflow"
)

// Roles a node can hold, recorded in its nodes row (spec.md §3
// Node.roles).
const (
	RoleWorker    = "worker"
	RoleScheduler = "scheduler"
	RoleGateway   = "gateway"
)

// App orchestrates one FORGE node's lifecycle. It is immutable after
// New returns; Run() blocks until a shutdown signal or Stop() is
// received, then drains every component in dependency order.
type App struct {
	pool   *pgxpool.Pool
	nodeID string
	log    *slog.Logger

	registry *cluster.Registry
	electors map[string]*cluster.Elector
	drainer  *cluster.Drainer

	jobs        *jobqueue.Queue
	cronRunner  *cron.Runner
	wfExecutor  *workflow.Executor
	wfScheduler *workflow.Scheduler
	reactor     *reactor.Reactor
	gateway     *gateway.Hub

	server *http.Server
	router chi.Router

	baseCtx         context.Context
	shutdownTimeout time.Duration
	shutdownHooks   []func(context.Context) error
	done            chan struct{}
}

// New builds a fully wired App. pool must be open and migrated (see
// db.Open/db.WithMigrations); nodeID identifies this process among its
// peers (spec.md §3 nodes.id). Construction order mirrors spec.md §2's
// control-flow leaves-first sequence: registry → election → (jobs,
// cron, workflow, reactor) → gateway.
func New(pool *pgxpool.Pool, nodeID string, opts ...Option) (*App, error) {
	if pool == nil {
		return nil, ferrors.Validation("forge: pool is required")
	}
	if nodeID == "" {
		nodeID = id.New()
	}

	cfg := newBuildConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	a := &App{
		pool:            pool,
		nodeID:          nodeID,
		log:             cfg.logger,
		electors:        make(map[string]*cluster.Elector),
		shutdownTimeout: cfg.shutdownTimeout,
		shutdownHooks:   cfg.shutdownHooks,
		done:            make(chan struct{}),
	}

	registry, err := cluster.NewRegistry(pool, nodeID, cfg.hostname, cfg.address, cfg.roles, cfg.capabilities,
		cluster.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.registry = registry

	var electorList []*cluster.Elector
	for _, role := range []string{RoleScheduler} {
		elector, err := cluster.NewElector(pool, nodeID, role, cluster.WithElectorLogger(a.log))
		if err != nil {
			return nil, err
		}
		a.electors[role] = elector
		electorList = append(electorList, elector)
	}
	a.drainer = cluster.NewDrainer(registry, electorList, cluster.WithDrainerLogger(a.log))

	queueOpts := append([]jobqueue.Option{jobqueue.WithLogger(a.log)}, cfg.queueOpts...)
	jobs, err := jobqueue.New(pool, nodeID, queueOpts...)
	if err != nil {
		return nil, err
	}
	a.jobs = jobs
	a.drainer.Drain = func(context.Context) error { return jobs.Stop() }

	cronRunner, err := cron.NewRunner(pool, a.electors[RoleScheduler], nodeID, cron.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	for _, c := range cfg.crons {
		if err := cronRunner.Register(c.name, c.expr, c.timezone, c.handler, c.opts...); err != nil {
			return nil, err
		}
	}
	a.cronRunner = cronRunner

	wfExecutor, err := workflow.NewExecutor(pool, workflow.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.workflows {
		if err := wfExecutor.Register(w.name, w.version, w.fn); err != nil {
			return nil, err
		}
	}
	a.wfExecutor = wfExecutor
	a.wfScheduler = workflow.NewScheduler(wfExecutor, a.electors[RoleScheduler], workflow.WithSchedulerLogger(a.log))

	reactorInst, err := reactor.New(pool, reactor.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.reactor = reactorInst

	gw, err := gateway.New(pool, reactorInst, jobs, wfExecutor, nodeID, gateway.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	for _, q := range cfg.queries {
		gw.RegisterQuery(q.name, q.tables, q.fn)
	}
	a.gateway = gw

	a.router = chi.NewRouter()
	a.router.Use(chimw.RequestID, chimw.Recoverer)
	a.router.Group(func(r chi.Router) {
		// Timeout only guards the short-lived health routes; wrapping the
		// WebSocket upgrade route would cancel its request context out
		// from under every long-lived connection it serves.
		r.Use(chimw.Timeout(cfg.requestTimeout))
		r.Get(cfg.livenessPath, health.LivenessHandler())
		r.Get(cfg.readinessPath, health.ReadinessHandler(cfg.healthChecks))
		r.Handle(cfg.metricsPath, promhttp.HandlerFor(registry.Gatherer(), promhttp.HandlerOpts{}))
	})
	a.router.Handle(cfg.wsPath, gw.Handler())
	a.server = &http.Server{
		Addr:              cfg.address,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

// Dispatch enqueues a job by task type (spec.md §6's "Job dispatch
// interface"), returning its id.
func (a *App) Dispatch(ctx context.Context, taskType string, payload any, opts ...jobqueue.EnqueueOption) (string, error) {
	return a.jobs.Enqueue(ctx, taskType, payload, opts...)
}

// Start begins a new workflow run (spec.md §6's "Start" counterpart to
// Dispatch), returning its run id.
func (a *App) Start(ctx context.Context, workflowName string, input json.RawMessage, opts ...workflow.StartOption) (*workflow.Run, error) {
	return a.wfExecutor.Start(ctx, workflowName, input, opts...)
}

// Pool exposes the shared connection pool for user-written migrations,
// queries, and mutations that live outside the core.
func (a *App) Pool() *pgxpool.Pool { return a.pool }

// NodeID returns this process's node identity.
func (a *App) NodeID() string { return a.nodeID }

// Router exposes the underlying chi.Router so callers can mount
// additional HTTP routes (REST/RPC envelopes, CORS, auth middleware —
// spec.md §1's "HTTP transport plumbing", explicitly out of core
// scope) alongside the gateway's WebSocket upgrade route.
func (a *App) Router() chi.Router { return a.router }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

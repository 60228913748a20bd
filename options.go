package forge

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrymomot/forge/pkg/cron"
	"github.com/dmitrymomot/forge/pkg/gateway"
	"github.com/dmitrymomot/forge/pkg/health"
	"github.com/dmitrymomot/forge/pkg/jobqueue"
	"github.com/dmitrymomot/forge/pkg/workflow"
)

// Option configures an App at construction time.
type Option func(*buildConfig)

type cronRegistration struct {
	name, expr, timezone string
	handler              cron.Handler
	opts                 []cron.RegisterOption
}

type workflowRegistration struct {
	name    string
	version int
	fn      workflow.Func
}

type queryRegistration struct {
	name   string
	tables []string
	fn     gateway.QueryFunc
}

// buildConfig accumulates everything options contribute before New
// constructs the real components; components themselves have no
// concept of "pending" registration, so the facade gathers option
// output here and replays it against each component once built.
type buildConfig struct {
	logger       *slog.Logger
	hostname     string
	address      string
	roles        []string
	capabilities []string

	shutdownTimeout time.Duration
	shutdownHooks   []func(context.Context) error

	queueOpts []jobqueue.Option
	crons     []cronRegistration
	workflows []workflowRegistration
	queries   []queryRegistration

	livenessPath   string
	readinessPath  string
	metricsPath    string
	healthChecks   health.Checks
	wsPath         string
	requestTimeout time.Duration
}

func newBuildConfig() *buildConfig {
	hostname, _ := os.Hostname()
	return &buildConfig{
		logger:          discardLogger(),
		hostname:        hostname,
		address:         ":8080",
		roles:           []string{RoleWorker},
		shutdownTimeout: 30 * time.Second,
		livenessPath:    "/health/live",
		readinessPath:   "/health/ready",
		metricsPath:     "/metrics",
		healthChecks:    make(health.Checks),
		wsPath:          "/ws",
		requestTimeout:  30 * time.Second,
	}
}

// WithRequestTimeout bounds how long the health and readiness routes
// may take before the router aborts with a 504. The WebSocket upgrade
// route is exempt: chi's Timeout middleware only wraps the request
// context deadline, and gateway.Hub manages its own connection
// lifetime past the upgrade.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *buildConfig) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithLogger sets the logger shared by every component. Defaults to a
// discard logger, matching the teacher's "nil logging is disabled"
// convention generalized to always-non-nil.
func WithLogger(l *slog.Logger) Option {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAddress sets the HTTP listen address serving health checks and
// the WebSocket upgrade route. Defaults to ":8080" (spec.md §6
// gateway.port).
func WithAddress(addr string) Option {
	return func(c *buildConfig) {
		if addr != "" {
			c.address = addr
		}
	}
}

// WithRoles sets the roles this node registers under in its nodes row
// (spec.md §3 node.roles). Roles do not gate leader election: every
// node builds the scheduler elector and stands for that role whatever
// roles it registers.
func WithRoles(roles ...string) Option {
	return func(c *buildConfig) {
		if len(roles) > 0 {
			c.roles = roles
		}
	}
}

// WithCapabilities sets the worker capabilities this node advertises
// (spec.md §3 node.worker_capabilities), used for capability-routed
// job claims.
func WithCapabilities(caps ...string) Option {
	return func(c *buildConfig) {
		c.capabilities = caps
	}
}

// WithShutdownTimeout bounds the graceful drain sequence. Defaults to
// 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *buildConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithShutdownHook registers a cleanup function run after every
// built-in component has stopped (e.g. db.Shutdown(pool)). Hooks run
// in registration order.
func WithShutdownHook(fn func(context.Context) error) Option {
	return func(c *buildConfig) {
		if fn != nil {
			c.shutdownHooks = append(c.shutdownHooks, fn)
		}
	}
}

// WithJobQueueOption passes a jobqueue.Option straight through to the
// queue's constructor, the seam used to register task handlers via
// jobqueue.WithTask[P, T].
func WithJobQueueOption(opt jobqueue.Option) Option {
	return func(c *buildConfig) {
		c.queueOpts = append(c.queueOpts, opt)
	}
}

// WithCronJob registers a named cron schedule, applied against the
// runner once it exists.
func WithCronJob(name, expr, timezone string, handler cron.Handler, opts ...cron.RegisterOption) Option {
	return func(c *buildConfig) {
		c.crons = append(c.crons, cronRegistration{name: name, expr: expr, timezone: timezone, handler: handler, opts: opts})
	}
}

// WithWorkflow registers a named, versioned workflow function.
func WithWorkflow(name string, version int, fn workflow.Func) Option {
	return func(c *buildConfig) {
		c.workflows = append(c.workflows, workflowRegistration{name: name, version: version, fn: fn})
	}
}

// WithQuery registers a reactive query: the tables it reads (fed to
// the reactor for invalidation) and the function that re-executes it
// for a subscriber (spec.md §1's "individual user-written queries" are
// an external collaborator; this is the seam they plug into).
func WithQuery(name string, tables []string, fn func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)) Option {
	return func(c *buildConfig) {
		c.queries = append(c.queries, queryRegistration{name: name, tables: tables, fn: gateway.QueryFunc(fn)})
	}
}

// WithHealthCheck adds a named readiness check (spec.md §6 readiness
// probe), run in parallel with every other registered check.
func WithHealthCheck(name string, fn health.CheckFunc) Option {
	return func(c *buildConfig) {
		c.healthChecks[name] = fn
	}
}

// WithLivenessPath overrides the default "/health/live" path.
func WithLivenessPath(path string) Option {
	return func(c *buildConfig) {
		if path != "" {
			c.livenessPath = path
		}
	}
}

// WithReadinessPath overrides the default "/health/ready" path.
func WithReadinessPath(path string) Option {
	return func(c *buildConfig) {
		if path != "" {
			c.readinessPath = path
		}
	}
}

// WithMetricsPath overrides the default "/metrics" Prometheus
// scrape path (spec.md §3 node.load_stats, exported as gauges
// alongside the database row so an external scraper doesn't have to
// poll Postgres for it).
func WithMetricsPath(path string) Option {
	return func(c *buildConfig) {
		if path != "" {
			c.metricsPath = path
		}
	}
}

// WithWebSocketPath overrides the default "/ws" upgrade path.
func WithWebSocketPath(path string) Option {
	return func(c *buildConfig) {
		if path != "" {
			c.wsPath = path
		}
	}
}

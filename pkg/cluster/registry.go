package cluster

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

// Registry tracks this process's membership row and runs its
// heartbeat loop. Read operations (GetActiveNodes) and maintenance
// operations (MarkDeadNodes, CleanupDeadNodes) may be called by any
// node, not just the one that registered.
type Registry struct {
	pool  *pgxpool.Pool
	log   *slog.Logger
	clock clockwork.Clock

	nodeID            string
	hostname          string
	address           string
	roles             []string
	capabilities      []string
	version           string
	heartbeatInterval time.Duration

	mu      sync.Mutex
	stats   LoadStats
	cancel  context.CancelFunc
	metrics *metrics
}


// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.heartbeatInterval = d
		}
	}
}

func WithVersion(v string) Option {
	return func(r *Registry) { r.version = v }
}

// NewRegistry builds a registry for this node. Register must be called
// before the heartbeat loop (Run) is started.
func NewRegistry(pool *pgxpool.Pool, nodeID, hostname, address string, roles, capabilities []string, opts ...Option) (*Registry, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	r := &Registry{
		pool:              pool,
		nodeID:            nodeID,
		hostname:          hostname,
		address:           address,
		roles:             roles,
		capabilities:      capabilities,
		clock:             clockwork.NewRealClock(),
		heartbeatInterval: 10 * time.Second,
		metrics:           newMetrics(nodeID),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// Register upserts this node's row with status joining, then
// immediately promotes it to active.
func (r *Registry) Register(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO nodes (id, hostname, address, roles, capabilities, status, version, started_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, 'joining', $6, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			hostname = $2, address = $3, roles = $4, capabilities = $5,
			status = 'joining', version = $6, started_at = now(), last_heartbeat = now()
	`, r.nodeID, r.hostname, r.address, r.roles, r.capabilities, r.version)
	if err != nil {
		return ferrors.DatabaseFailure(err, "register node %s", r.nodeID)
	}

	return r.SetStatus(ctx, StatusActive)
}

// SetStatus transitions this node's status row.
func (r *Registry) SetStatus(ctx context.Context, status Status) error {
	_, err := r.pool.Exec(ctx, `UPDATE nodes SET status = $2 WHERE id = $1`, r.nodeID, string(status))
	if err != nil {
		return ferrors.DatabaseFailure(err, "set node status %s", status)
	}
	return nil
}

// Deregister removes this node's row entirely, used on clean shutdown
// after draining completes.
func (r *Registry) Deregister(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM nodes WHERE id = $1`, r.nodeID)
	if err != nil {
		return ferrors.DatabaseFailure(err, "deregister node %s", r.nodeID)
	}
	return nil
}

// PublishLoad updates the in-memory stats the next heartbeat tick will
// persist to load_stats.
func (r *Registry) PublishLoad(stats LoadStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
	r.metrics.observe(stats)
}

// Run starts the heartbeat loop, refreshing last_heartbeat and
// load_stats every heartbeatInterval. It blocks until ctx is canceled.
func (r *Registry) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	ticker := r.clock.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.Chan():
			if err := r.heartbeat(runCtx); err != nil {
				r.log.ErrorContext(runCtx, "heartbeat failed", slog.Any("error", err))
			}
		}
	}
}

func (r *Registry) heartbeat(ctx context.Context) error {
	r.mu.Lock()
	stats := r.stats
	r.mu.Unlock()

	loadJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE nodes SET last_heartbeat = now(), load_stats = $2::jsonb WHERE id = $1
	`, r.nodeID, string(loadJSON))
	if err != nil {
		return ferrors.DatabaseFailure(err, "heartbeat node %s", r.nodeID)
	}
	return nil
}

// GetActiveNodes returns all nodes currently in the active status.
func (r *Registry) GetActiveNodes(ctx context.Context) ([]Node, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, hostname, address, roles, capabilities, status, version, started_at, last_heartbeat
		FROM nodes WHERE status = 'active'
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, ferrors.DatabaseFailure(err, "list active nodes")
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, ferrors.DatabaseFailure(err, "scan node")
		}
		nodes = append(nodes, n)
	}
	if rows.Err() != nil {
		return nil, ferrors.DatabaseFailure(rows.Err(), "list active nodes")
	}
	return nodes, nil
}

// MarkDeadNodes flips active nodes whose last_heartbeat is older than
// threshold to dead. Typically threshold is 3x the heartbeat interval.
func (r *Registry) MarkDeadNodes(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE nodes SET status = 'dead'
		WHERE status = 'active' AND last_heartbeat < now() - ($1 * interval '1 second')
	`, threshold.Seconds())
	if err != nil {
		return 0, ferrors.DatabaseFailure(err, "mark dead nodes")
	}
	return tag.RowsAffected(), nil
}

// CleanupDeadNodes permanently removes rows that have been dead for
// longer than olderThan.
func (r *Registry) CleanupDeadNodes(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM nodes
		WHERE status = 'dead' AND last_heartbeat < now() - ($1 * interval '1 second')
	`, olderThan.Seconds())
	if err != nil {
		return 0, ferrors.DatabaseFailure(err, "cleanup dead nodes")
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var n Node
	if err := row.Scan(&n.ID, &n.Hostname, &n.Address, &n.Roles, &n.Capabilities, &n.Status, &n.Version, &n.StartedAt, &n.LastHeartbeat); err != nil {
		return Node{}, err
	}
	return n, nil
}

// Stop cancels the heartbeat loop started by Run.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

package cluster

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

// Elector runs leader election for a single role on behalf of this
// node. Liveness is an advisory lock held on the connection the
// session acquired it on: if the process dies, Postgres releases the
// lock and another node's standby loop picks it up on its next check.
// The leaders table mirrors who currently holds the lock so other
// nodes can observe leadership without contending for it.
type Elector struct {
	pool   *pgxpool.Pool
	log    *slog.Logger
	clock  clockwork.Clock
	nodeID string
	role   string
	lockID int64

	leaseDuration time.Duration
	refreshEvery  time.Duration
	checkEvery    time.Duration

	mu       sync.RWMutex
	leading  bool
	conn     *pgxpool.Conn
	cancel   context.CancelFunc
}

// ElectorOption configures an Elector.
type ElectorOption func(*Elector)

func WithElectorLogger(l *slog.Logger) ElectorOption {
	return func(e *Elector) {
		if l != nil {
			e.log = l
		}
	}
}

func WithElectorClock(c clockwork.Clock) ElectorOption {
	return func(e *Elector) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLeaseDuration(d time.Duration) ElectorOption {
	return func(e *Elector) {
		if d > 0 {
			e.leaseDuration = d
		}
	}
}

func WithRefreshInterval(d time.Duration) ElectorOption {
	return func(e *Elector) {
		if d > 0 {
			e.refreshEvery = d
		}
	}
}

func WithCheckInterval(d time.Duration) ElectorOption {
	return func(e *Elector) {
		if d > 0 {
			e.checkEvery = d
		}
	}
}

// NewElector builds an elector for the given role. The advisory lock
// id is derived deterministically from the role name (fnv-1a, folded
// into a signed 64-bit int) so every node in the cluster computes the
// same id without coordination.
func NewElector(pool *pgxpool.Pool, nodeID, role string, opts ...ElectorOption) (*Elector, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	e := &Elector{
		pool:          pool,
		nodeID:        nodeID,
		role:          role,
		lockID:        roleLockID(role),
		leaseDuration: 30 * time.Second,
		refreshEvery:  10 * time.Second,
		checkEvery:    5 * time.Second,
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e, nil
}

func roleLockID(role string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("forge:leader:" + role))
	return int64(h.Sum64())
}

// IsLeader reports whether this node currently holds the role's lock.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leading
}

// Run drives the standby/leader lifecycle until ctx is canceled: while
// standing by it polls for an acquirable lock every checkEvery; once
// leading it refreshes the lease every refreshEvery until the
// connection is lost or ctx is done, then releases and resumes
// standby.
func (e *Elector) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer e.release(context.Background())

	ticker := e.clock.NewTicker(e.checkEvery)
	defer ticker.Stop()

	for {
		if e.IsLeader() {
			if err := e.holdLease(runCtx); err != nil {
				e.log.WarnContext(runCtx, "lost leadership", slog.String("role", e.role), slog.Any("error", err))
				e.release(runCtx)
			}
		}

		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.Chan():
			if !e.IsLeader() {
				e.tryAcquire(runCtx)
			}
		}
	}
}

func (e *Elector) tryAcquire(ctx context.Context) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		e.log.ErrorContext(ctx, "elector: acquire conn failed", slog.Any("error", err))
		return
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, e.lockID).Scan(&acquired); err != nil {
		conn.Release()
		e.log.ErrorContext(ctx, "elector: try_advisory_lock failed", slog.Any("error", err))
		return
	}
	if !acquired {
		conn.Release()
		return
	}

	if err := e.writeLease(ctx, conn); err != nil {
		e.releaseConn(ctx, conn)
		e.log.ErrorContext(ctx, "elector: write lease failed", slog.Any("error", err))
		return
	}

	e.mu.Lock()
	e.leading = true
	e.conn = conn
	e.mu.Unlock()

	e.log.InfoContext(ctx, "became leader", slog.String("role", e.role), slog.String("node_id", e.nodeID))
}

func (e *Elector) writeLease(ctx context.Context, conn *pgxpool.Conn) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO leaders (role, node_id, acquired_at, lease_until)
		VALUES ($1, $2, now(), now() + ($3 * interval '1 second'))
		ON CONFLICT (role) DO UPDATE SET
			node_id = $2, acquired_at = now(), lease_until = now() + ($3 * interval '1 second')
	`, e.role, e.nodeID, e.leaseDuration.Seconds())
	if err != nil {
		return ferrors.DatabaseFailure(err, "write lease for role %s", e.role)
	}
	return nil
}

func (e *Elector) holdLease(ctx context.Context) error {
	e.mu.RLock()
	conn := e.conn
	e.mu.RUnlock()
	if conn == nil {
		return ErrNotRegistered
	}

	timer := e.clock.NewTimer(e.refreshEvery)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return e.writeLease(ctx, conn)
	}
}

func (e *Elector) release(ctx context.Context) {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.leading = false
	e.mu.Unlock()
	if conn != nil {
		e.releaseConn(ctx, conn)
	}
}

func (e *Elector) releaseConn(ctx context.Context, conn *pgxpool.Conn) {
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, e.lockID); err != nil {
		e.log.WarnContext(ctx, "elector: advisory_unlock failed", slog.Any("error", err))
	}
	_, _ = e.pool.Exec(ctx, `DELETE FROM leaders WHERE role = $1 AND node_id = $2`, e.role, e.nodeID)
	conn.Release()
}

// Stop cancels the election loop and releases leadership if held.
func (e *Elector) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// CurrentLeader returns the current lease row for a role, if any.
func CurrentLeader(ctx context.Context, pool *pgxpool.Pool, role string) (*Leader, error) {
	var l Leader
	err := pool.QueryRow(ctx, `
		SELECT role, node_id, acquired_at, lease_until FROM leaders WHERE role = $1
	`, role).Scan(&l.Role, &l.NodeID, &l.AcquiredAt, &l.LeaseUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, ferrors.DatabaseFailure(err, "current leader for role %s", role)
	}
	return &l, nil
}

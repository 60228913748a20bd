package reactor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

const notifyChannel = "forge_changes"

// Event is what the Listener delivers: either a parsed Change, or a
// Resync signal meaning the listener reconnected and may have missed
// notifications in the gap, so subscribers should treat their cached
// view as stale and re-execute.
type Event struct {
	Change *Change
	Resync bool
}

type notifyPayload struct {
	Table          string   `json:"table"`
	Op             string   `json:"op"`
	RowID          string   `json:"row_id"`
	ChangedColumns []string `json:"changed_columns"`
}

// Listener holds a dedicated connection LISTENing on forge_changes and
// republishes every NOTIFY as an Event, reconnecting after a fixed
// retry delay and
// emitting a Resync event whenever it has to re-establish the
// connection (spec.md §9 "NOTIFY gap").
type Listener struct {
	pool  *pgxpool.Pool
	log   *slog.Logger
	retry time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	events  chan Event
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

func WithListenerLogger(log *slog.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// WithListenerRetry sets the delay between reconnect attempts.
// Defaults to one second.
func WithListenerRetry(d time.Duration) ListenerOption {
	return func(l *Listener) { l.retry = d }
}

func NewListener(pool *pgxpool.Pool, opts ...ListenerOption) (*Listener, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	l := &Listener{
		pool:   pool,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		retry:  time.Second,
		events: make(chan Event, 256),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Events returns the channel Change/Resync events are delivered on.
// Must be drained by the caller or the listener's internal buffer
// (256 events) will fill and start dropping notifications.
func (l *Listener) Events() <-chan Event { return l.events }

// Run acquires a dedicated connection and LISTENs until ctx is
// canceled, reconnecting on any connection error after emitting a
// Resync event.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.started = true
	l.cancel = cancel
	l.mu.Unlock()

	first := true
	for {
		if runCtx.Err() != nil {
			return nil
		}
		if !first {
			l.emit(Event{Resync: true})
		}
		first = false

		if err := l.listenOnce(runCtx); err != nil {
			l.log.Error("reactor: listen connection lost", "error", err)
			select {
			case <-runCtx.Done():
				return nil
			case <-time.After(l.retry):
			}
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return ferrors.DatabaseFailure(err, "reactor: acquire listen connection")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return ferrors.DatabaseFailure(err, "reactor: LISTEN")
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ferrors.DatabaseFailure(err, "reactor: wait for notification")
		}
		l.handleNotification(notification.Payload)
	}
}

func (l *Listener) handleNotification(payload string) {
	var np notifyPayload
	if err := json.Unmarshal([]byte(payload), &np); err != nil {
		l.log.Error("reactor: malformed notify payload", "error", err, "payload", payload)
		return
	}
	change := Change{
		Table:          np.Table,
		Op:             ChangeOp(strings.ToUpper(np.Op)),
		RowID:          np.RowID,
		ChangedColumns: np.ChangedColumns,
	}
	l.emit(Event{Change: &change})
}

func (l *Listener) emit(ev Event) {
	select {
	case l.events <- ev:
	default:
		l.log.Warn("reactor: event buffer full, dropping event")
	}
}

// Stop halts the listen loop.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.started = false
}

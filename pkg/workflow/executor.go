package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/id"
)

// store is the full persistence surface the workflow engine needs: the
// per-step journal (shared with Ctx) plus run-level lifecycle and
// event delivery, used by Executor and Scheduler.
type store interface {
	journal

	createRun(ctx context.Context, run *Run) error
	getRun(ctx context.Context, runID string) (*Run, error)
	setRunning(ctx context.Context, runID string) error
	completeRun(ctx context.Context, runID string, output json.RawMessage) error
	failRun(ctx context.Context, runID string, errMsg string) error
	resumeFromWait(ctx context.Context, runID string) error

	dueTimerRuns(ctx context.Context, limit int) ([]*Run, error)
	dueEventTimeouts(ctx context.Context, limit int) ([]*Run, error)
	dueEventArrivals(ctx context.Context, limit int) ([]eventArrival, error)

	saveEvent(ctx context.Context, ev *Event) error
	consumeEvent(ctx context.Context, eventID string) error
}

// eventArrival pairs a waiting run with the unconsumed event that
// satisfies it.
type eventArrival struct {
	runID     string
	eventID   string
	eventName string
	payload   json.RawMessage
}

// Executor starts and resumes workflow runs against Postgres
// (spec.md §4.6). It holds the registry of workflow functions; the
// durable state lives entirely in workflow_runs/workflow_steps so any
// node running the same registered workflows can resume any run.
type Executor struct {
	pool  *pgxpool.Pool
	store store
	reg   *registry
	log   *slog.Logger
	clock clockwork.Clock
}

// NewExecutor builds an Executor. pool must be non-nil.
func NewExecutor(pool *pgxpool.Pool, opts ...Option) (*Executor, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	e := &Executor{
		pool:  pool,
		store: &pgStore{pool: pool},
		reg:   newRegistry(),
		log:   defaultLogger(),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Register adds a workflow function under name/version. Starting a run
// with Start and no WithVersion binds it to the highest version
// registered at that moment; a run always resumes under the version it started
// with, so older versions must stay registered as long as runs created
// under them might still be outstanding.
func (e *Executor) Register(name string, version int, fn Func) error {
	return e.reg.add(name, version, fn)
}

// StartOption configures a single Start call.
type StartOption func(*startConfig)

type startConfig struct {
	version   int
	traceID   string
}

// WithVersion pins the run to an explicit workflow version instead of
// the latest registered one.
func WithVersion(v int) StartOption {
	return func(c *startConfig) { c.version = v }
}

// WithTraceID attaches a caller-supplied trace id to the run.
func WithTraceID(traceID string) StartOption {
	return func(c *startConfig) { c.traceID = traceID }
}

// Start creates a new run for the named workflow and executes it
// synchronously up to its first suspension, completion, or failure.
func (e *Executor) Start(ctx context.Context, name string, input json.RawMessage, opts ...StartOption) (*Run, error) {
	cfg := &startConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	version := cfg.version
	if version == 0 {
		v, ok := e.reg.latestVersion(name)
		if !ok {
			return nil, ErrUnknownWorkflow
		}
		version = v
	}
	if _, ok := e.reg.get(name, version); !ok {
		return nil, ErrUnknownWorkflow
	}

	run := &Run{
		ID:           id.New(),
		WorkflowName: name,
		Version:      version,
		Input:        input,
		Status:       StatusCreated,
		StartedAt:    e.clock.Now(),
		TraceID:      cfg.traceID,
	}
	if err := e.store.createRun(ctx, run); err != nil {
		return nil, err
	}

	e.executeRun(ctx, run)
	return e.store.getRun(ctx, run.ID)
}

// Resume continues a suspended run from wherever it left off. The
// scheduler calls this once a run's wake condition (timer or event) is
// satisfied; it can also be called directly to force-resume a run
// that is stuck in the waiting state.
func (e *Executor) Resume(ctx context.Context, runID string) error {
	run, err := e.store.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != StatusWaiting {
		return ErrNotResumable
	}
	if err := e.store.resumeFromWait(ctx, runID); err != nil {
		return err
	}
	run.Status = StatusRunning
	e.executeRun(ctx, run)
	return nil
}

// GetRun returns the current persisted state of a run, for callers
// (pkg/gateway) that need a snapshot to answer a subscribe_workflow
// request or push a workflow_update.
func (e *Executor) GetRun(ctx context.Context, runID string) (*Run, error) {
	return e.store.getRun(ctx, runID)
}

// PostEvent delivers an external event to the run whose id is
// correlationID. Delivery itself only persists the event; the
// scheduler's event-wake pass journals it against that run, once the
// run waits on eventName, and resumes it.
func (e *Executor) PostEvent(ctx context.Context, correlationID, eventName string, payload json.RawMessage) error {
	return e.store.saveEvent(ctx, &Event{
		ID:            id.New(),
		CorrelationID: correlationID,
		EventName:     eventName,
		Payload:       payload,
		DeliveredAt:   e.clock.Now(),
	})
}

// executeRun runs the registered function for run from the top,
// replaying its journal, and persists the outcome: completed, failed
// (with compensation), or left waiting if the function suspended.
func (e *Executor) executeRun(ctx context.Context, run *Run) {
	fn, ok := e.reg.get(run.WorkflowName, run.Version)
	if !ok {
		e.failTerminal(ctx, run, ErrUnknownWorkflow.Error())
		return
	}

	if err := e.store.setRunning(ctx, run.ID); err != nil {
		e.log.Error("workflow: failed to mark run running", "run_id", run.ID, "error", err)
	}

	wctx := newCtx(ctx, e.store, e.clock, run.ID, run.StartedAt)
	output, err := fn(wctx, run.Input)

	switch {
	case err == nil:
		if err := e.store.completeRun(ctx, run.ID, output); err != nil {
			e.log.Error("workflow: failed to persist completion", "run_id", run.ID, "error", err)
		}
	case IsSuspended(err):
		// The function already journaled its wake condition before
		// returning errSuspended; workflow_runs was updated to
		// 'waiting' by suspendSleep/suspendWaitForEvent, nothing left
		// to persist here.
	default:
		if compErr := wctx.Compensate(ctx); compErr != nil {
			e.log.Error("workflow: compensation failed", "run_id", run.ID, "error", compErr)
		}
		e.failTerminal(ctx, run, err.Error())
	}
}

func (e *Executor) failTerminal(ctx context.Context, run *Run, msg string) {
	if err := e.store.failRun(ctx, run.ID, msg); err != nil {
		e.log.Error("workflow: failed to persist failure", "run_id", run.ID, "error", err)
	}
}

// pgStore is the Postgres-backed store implementation.
type pgStore struct {
	pool *pgxpool.Pool
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return ferrors.DatabaseFailure(err, "workflow store")
}

func (s *pgStore) createRun(ctx context.Context, run *Run) error {
	input := run.Input
	if input == nil {
		input = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_name, version, input, status, started_at, trace_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.WorkflowName, run.Version, input, StatusCreated, run.StartedAt, nullIfEmpty(run.TraceID))
	return wrapErr(err)
}

func (s *pgStore) getRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_name, version, input, output, status, current_step,
		       started_at, completed_at, error, wake_at, waiting_for_event,
		       event_timeout_at, suspended_at, trace_id
		FROM workflow_runs WHERE id = $1
	`, runID)

	var run Run
	var traceID, waitingFor, errMsg *string
	if err := row.Scan(
		&run.ID, &run.WorkflowName, &run.Version, &run.Input, &run.Output, &run.Status, &run.CurrentStep,
		&run.StartedAt, &run.CompletedAt, &errMsg, &run.WakeAt, &waitingFor,
		&run.EventTimeoutAt, &run.SuspendedAt, &traceID,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRunNotFound
		}
		return nil, wrapErr(err)
	}
	if errMsg != nil {
		run.Error = *errMsg
	}
	if waitingFor != nil {
		run.WaitingForEvent = *waitingFor
	}
	if traceID != nil {
		run.TraceID = *traceID
	}
	return &run, nil
}

func (s *pgStore) setRunning(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE workflow_runs SET status = $2 WHERE id = $1`, runID, StatusRunning)
	return wrapErr(err)
}

func (s *pgStore) completeRun(ctx context.Context, runID string, output json.RawMessage) error {
	if output == nil {
		output = json.RawMessage("null")
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs SET status = $2, output = $3, completed_at = now() WHERE id = $1
	`, runID, StatusCompleted, output)
	return wrapErr(err)
}

func (s *pgStore) failRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs SET status = $2, error = $3, completed_at = now() WHERE id = $1
	`, runID, StatusFailed, errMsg)
	return wrapErr(err)
}

func (s *pgStore) resumeFromWait(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, wake_at = NULL, waiting_for_event = NULL,
		    event_timeout_at = NULL, suspended_at = NULL
		WHERE id = $1
	`, runID, StatusRunning)
	return wrapErr(err)
}

func (s *pgStore) dueTimerRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM workflow_runs
		WHERE status = $1 AND waiting_for_event IS NULL AND wake_at <= now()
		ORDER BY wake_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, StatusWaiting, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return scanRunIDs(rows)
}

func (s *pgStore) dueEventTimeouts(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM workflow_runs
		WHERE status = $1 AND waiting_for_event IS NOT NULL AND event_timeout_at <= now()
		ORDER BY event_timeout_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, StatusWaiting, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return scanRunIDs(rows)
}

// dueEventArrivals finds waiting runs whose correlation id (the run
// id) has an unconsumed event matching what they're waiting for. Runs
// this way instead of as a second branch of dueEventTimeouts because
// it joins workflow_events, a different lock scope than the timeout
// scan above (mirrors the original runtime's two separate scheduler
// queries).
func (s *pgStore) dueEventArrivals(ctx context.Context, limit int) ([]eventArrival, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wr.id, we.id, we.event_name, we.payload
		FROM workflow_runs wr
		JOIN workflow_events we
		  ON we.correlation_id = wr.id
		 AND we.event_name = wr.waiting_for_event
		 AND we.consumed_at IS NULL
		WHERE wr.status = $1 AND wr.waiting_for_event IS NOT NULL
		ORDER BY we.delivered_at
		LIMIT $2
		FOR UPDATE OF wr SKIP LOCKED
	`, StatusWaiting, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []eventArrival
	for rows.Next() {
		var a eventArrival
		if err := rows.Scan(&a.runID, &a.eventID, &a.eventName, &a.payload); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, a)
	}
	return out, wrapErr(rows.Err())
}

func scanRunIDs(rows pgx.Rows) ([]*Run, error) {
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, &Run{ID: id})
	}
	return out, wrapErr(rows.Err())
}

func (s *pgStore) saveEvent(ctx context.Context, ev *Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_events (id, correlation_id, event_name, payload, delivered_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, ev.CorrelationID, ev.EventName, payload, ev.DeliveredAt)
	return wrapErr(err)
}

func (s *pgStore) consumeEvent(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE workflow_events SET consumed_at = now() WHERE id = $1`, eventID)
	return wrapErr(err)
}

func (s *pgStore) getStep(ctx context.Context, runID, name string) (*StepRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT name, status, result, error, started_at, completed_at
		FROM workflow_steps WHERE run_id = $1 AND name = $2
	`, runID, name)

	var rec StepRecord
	var errMsg *string
	if err := row.Scan(&rec.Name, &rec.Status, &rec.Result, &errMsg, &rec.StartedAt, &rec.CompletedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, wrapErr(err)
	}
	if errMsg != nil {
		rec.Error = *errMsg
	}
	return &rec, true, nil
}

func (s *pgStore) saveStep(ctx context.Context, runID string, rec *StepRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_steps (id, run_id, name, status, result, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, name) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			started_at = COALESCE(workflow_steps.started_at, EXCLUDED.started_at),
			completed_at = EXCLUDED.completed_at
	`, id.New(), runID, rec.Name, rec.Status, rec.Result, nullIfEmpty(rec.Error), rec.StartedAt, rec.CompletedAt)
	return wrapErr(err)
}

func (s *pgStore) suspendSleep(ctx context.Context, runID string, wakeAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, wake_at = $3, suspended_at = now()
		WHERE id = $1
	`, runID, StatusWaiting, wakeAt)
	return wrapErr(err)
}

func (s *pgStore) suspendWaitForEvent(ctx context.Context, runID, eventName string, timeoutAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, waiting_for_event = $3, event_timeout_at = $4, suspended_at = now()
		WHERE id = $1
	`, runID, StatusWaiting, eventName, timeoutAt)
	return wrapErr(err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

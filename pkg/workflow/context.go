package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// journal is the persistence surface Ctx needs. executor.go's pgStore
// is the real implementation; tests use an in-memory fake so step
// logic is verifiable without a database.
type journal interface {
	getStep(ctx context.Context, runID, name string) (*StepRecord, bool, error)
	saveStep(ctx context.Context, runID string, rec *StepRecord) error
	suspendSleep(ctx context.Context, runID string, wakeAt time.Time) error
	suspendWaitForEvent(ctx context.Context, runID, eventName string, timeoutAt time.Time) error
}

// compensator is a step's undo action, run in reverse completion order
// when a later step in the same workflow fails (spec.md §4.6).
type compensator func(ctx context.Context) error

// Ctx is the durable handle a workflow function uses to perform and
// journal its effects. It is not safe for use outside the Func it was
// passed to, and must not be retained past that call.
type Ctx struct {
	ctx   context.Context
	j     journal
	clock clockwork.Clock
	runID string

	// startedAt is the run's captured start time, the sole source of
	// "now" a workflow body may observe, so replay sees the same time
	// whichever resume it runs on (spec.md §9 determinism).
	startedAt time.Time

	sleepSeq int

	// mu guards completedOrder/compensators: ParallelSteps runs
	// stepCompensated from multiple goroutines, and both are otherwise
	// plain unsynchronized map/slice state.
	mu             sync.Mutex
	completedOrder []string
	compensators   map[string]compensator
}

// recordCompletion registers name's compensator (if any) and appends it
// to the completion order under mu, safe to call from concurrent steps.
func (c *Ctx) recordCompletion(name string, compensate compensator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if compensate != nil {
		c.compensators[name] = compensate
	}
	c.completedOrder = append(c.completedOrder, name)
}

// compensatorFor returns name's registered compensator, if any, under mu.
func (c *Ctx) compensatorFor(name string) (compensator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	comp, ok := c.compensators[name]
	return comp, ok
}

// completionSnapshot returns a copy of completedOrder under mu, safe to
// range over after concurrent steps have finished.
func (c *Ctx) completionSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.completedOrder...)
}

func newCtx(ctx context.Context, j journal, clock clockwork.Clock, runID string, startedAt time.Time) *Ctx {
	return &Ctx{
		ctx:          ctx,
		j:            j,
		clock:        clock,
		runID:        runID,
		startedAt:    startedAt,
		compensators: make(map[string]compensator),
	}
}

// Context returns the underlying context for the current step's
// execution, carrying cancellation and any request-scoped values.
func (c *Ctx) Context() context.Context { return c.ctx }

// WorkflowTime returns the deterministic "now" for this run: the
// instant it started, not wall-clock time of whichever replay is
// executing.
func (c *Ctx) WorkflowTime() time.Time { return c.startedAt }

// Step runs fn exactly once per run, keyed by name. On replay, if name
// already has a completed journal entry, Step returns its cached
// result without invoking fn. A failed entry is also terminal: Step
// returns its cached error rather than retrying, since retries are the
// job queue's concern (spec.md §4.4), not the workflow engine's.
func (c *Ctx) Step(name string, fn func(ctx context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	return c.stepCompensated(name, fn, nil)
}

// StepWithCompensate is Step plus an undo action. If a later step in
// this run fails, compensate runs for every already-completed step
// that registered one, most-recently-completed first.
func (c *Ctx) StepWithCompensate(name string, fn func(ctx context.Context) (json.RawMessage, error), compensate compensator) (json.RawMessage, error) {
	return c.stepCompensated(name, fn, compensate)
}

func (c *Ctx) stepCompensated(name string, fn func(ctx context.Context) (json.RawMessage, error), compensate compensator) (json.RawMessage, error) {
	rec, found, err := c.j.getStep(c.ctx, c.runID, name)
	if err != nil {
		return nil, err
	}
	if found {
		if compensate != nil {
			c.recordCompletion(name, compensate)
		}
		if rec.Status == StepFailed {
			return nil, fmt.Errorf("workflow: step %q: %s", name, rec.Error)
		}
		return rec.Result, nil
	}

	now := c.clock.Now()
	running := &StepRecord{Name: name, Status: StepRunning, StartedAt: &now}
	if err := c.j.saveStep(c.ctx, c.runID, running); err != nil {
		return nil, err
	}

	result, runErr := fn(c.ctx)
	done := c.clock.Now()
	if runErr != nil {
		failed := &StepRecord{Name: name, Status: StepFailed, Error: runErr.Error(), StartedAt: &now, CompletedAt: &done}
		if saveErr := c.j.saveStep(c.ctx, c.runID, failed); saveErr != nil {
			return nil, saveErr
		}
		return nil, runErr
	}

	completed := &StepRecord{Name: name, Status: StepCompleted, Result: result, StartedAt: &now, CompletedAt: &done}
	if err := c.j.saveStep(c.ctx, c.runID, completed); err != nil {
		return nil, err
	}
	c.recordCompletion(name, compensate)
	return result, nil
}

// Compensate runs every registered compensator for steps completed so
// far in this run, most-recently-completed first, stopping at (and
// returning) the first compensator error. Already-compensated steps
// from a prior partial compensation attempt are skipped.
func (c *Ctx) Compensate(ctx context.Context) error {
	order := c.completionSnapshot()
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		comp, ok := c.compensatorFor(name)
		if !ok {
			continue
		}
		rec, found, err := c.j.getStep(ctx, c.runID, name)
		if err == nil && found && rec.Status == StepCompensated {
			continue
		}
		if err := comp(ctx); err != nil {
			return fmt.Errorf("workflow: compensating step %q: %w", name, err)
		}
		now := c.clock.Now()
		if err := c.j.saveStep(ctx, c.runID, &StepRecord{Name: name, Status: StepCompensated, CompletedAt: &now}); err != nil {
			return err
		}
	}
	return nil
}

// Sleep suspends the run until d has elapsed since the call was first
// reached. On a cold call it persists a wake time and returns
// errSuspended; the scheduler resumes the run once the wake time has
// passed, at which point this same call finds its journal entry
// already satisfied and returns nil immediately.
func (c *Ctx) Sleep(d time.Duration) error {
	c.sleepSeq++
	name := fmt.Sprintf("__sleep_%d", c.sleepSeq)

	rec, found, err := c.j.getStep(c.ctx, c.runID, name)
	if err != nil {
		return err
	}
	if found && rec.Status == StepCompleted {
		return nil
	}

	wakeAt := c.clock.Now().Add(d)
	now := c.clock.Now()
	if err := c.j.saveStep(c.ctx, c.runID, &StepRecord{Name: name, Status: StepCompleted, StartedAt: &now, CompletedAt: &now}); err != nil {
		return err
	}
	if err := c.j.suspendSleep(c.ctx, c.runID, wakeAt); err != nil {
		return err
	}
	return errSuspended
}

// WaitForEvent suspends the run until an event named eventName is
// posted for this run's correlation id, or timeout elapses. A cold
// call persists the wait condition and returns errSuspended. Once the
// scheduler observes a matching event (or the timeout), it resumes the
// run; this call then finds the journal entry already populated with
// either the event payload or errEventTimeout.
func (c *Ctx) WaitForEvent(eventName string, timeout time.Duration) (json.RawMessage, error) {
	name := "__event_" + eventName

	rec, found, err := c.j.getStep(c.ctx, c.runID, name)
	if err != nil {
		return nil, err
	}
	if found {
		if rec.Status == StepFailed {
			return nil, errEventTimeout
		}
		return rec.Result, nil
	}

	if err := c.j.suspendWaitForEvent(c.ctx, c.runID, eventName, c.clock.Now().Add(timeout)); err != nil {
		return nil, err
	}
	return nil, errSuspended
}

// ParallelResult is one named outcome of a ParallelSteps call.
type ParallelResult struct {
	Name   string
	Result json.RawMessage
	Err    error
}

// ParallelStep is a single unit of work inside a ParallelSteps call.
type ParallelStep struct {
	Name       string
	Fn         func(ctx context.Context) (json.RawMessage, error)
	Compensate compensator
}

// ParallelSteps runs every step concurrently, journaling each the same
// way Step does, so already-completed steps from a prior attempt are
// skipped on replay and only the pending ones actually execute. If any
// step fails, ParallelSteps compensates every step that completed in
// this call (in reverse order of their position in steps) before
// returning the first error.
func (c *Ctx) ParallelSteps(steps []ParallelStep) ([]ParallelResult, error) {
	results := make([]ParallelResult, len(steps))

	// Plain errgroup, not WithContext: a step's failure must not cancel
	// its siblings, since every step still needs to finish and journal
	// its own outcome before compensation can run in a known order.
	var g errgroup.Group
	for i, s := range steps {
		i, s := i, s
		g.Go(func() error {
			res, err := c.stepCompensated(s.Name, s.Fn, s.Compensate)
			results[i] = ParallelResult{Name: s.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	completedNames := make([]string, 0, len(steps))
	for _, res := range results {
		if res.Err != nil {
			if firstErr == nil && !IsSuspended(res.Err) {
				firstErr = res.Err
			}
			continue
		}
		completedNames = append(completedNames, res.Name)
	}

	if firstErr != nil {
		for i := len(completedNames) - 1; i >= 0; i-- {
			name := completedNames[i]
			comp, ok := c.compensatorFor(name)
			if !ok {
				continue
			}
			if err := comp(c.ctx); err != nil {
				return results, fmt.Errorf("workflow: compensating parallel step %q: %w", name, err)
			}
			now := c.clock.Now()
			_ = c.j.saveStep(c.ctx, c.runID, &StepRecord{Name: name, Status: StepCompensated, CompletedAt: &now})
		}
		return results, firstErr
	}

	return results, nil
}

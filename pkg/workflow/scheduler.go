package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Leadership reports whether this node currently holds the leader role
// it was constructed against. Satisfied by *cluster.Elector.
type Leadership interface {
	IsLeader() bool
}

// Scheduler wakes suspended workflow runs once their wait condition is
// satisfied (spec.md §4.7). Only the elected leader for its role runs
// the wake loop, so a timer or event is never delivered twice.
type Scheduler struct {
	exec         *Executor
	leader       Leadership
	log          *slog.Logger
	clock        clockwork.Clock
	pollInterval time.Duration
	batchSize    int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithSchedulerClock injects the clock driving the poll ticker.
func WithSchedulerClock(clock clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = clock }
}

// WithSchedulerPollInterval sets how often the scheduler checks for
// runs ready to wake. Defaults to one second.
func WithSchedulerPollInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithSchedulerBatchSize caps how many runs are woken per tick per
// category (timer, event timeout, event arrival). Defaults to 100.
func WithSchedulerBatchSize(n int) SchedulerOption {
	return func(s *Scheduler) { s.batchSize = n }
}

// NewScheduler builds a Scheduler over exec. leader may be nil, in
// which case the scheduler always runs (useful for tests and
// single-node setups).
func NewScheduler(exec *Executor, leader Leadership, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		exec:         exec,
		leader:       leader,
		log:          defaultLogger(),
		clock:        clockwork.NewRealClock(),
		pollInterval: time.Second,
		batchSize:    100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, ticking until ctx is canceled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.Chan():
			if s.leader == nil || s.leader.IsLeader() {
				s.tick(runCtx)
			}
		}
	}
}

// Stop halts the scheduler's wake loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
}

func (s *Scheduler) tick(ctx context.Context) {
	s.wakeTimers(ctx)
	s.wakeEventTimeouts(ctx)
	s.wakeEventArrivals(ctx)
}

func (s *Scheduler) wakeTimers(ctx context.Context) {
	runs, err := s.exec.store.dueTimerRuns(ctx, s.batchSize)
	if err != nil {
		s.log.Error("workflow scheduler: list due timers", "error", err)
		return
	}
	for _, run := range runs {
		if err := s.exec.Resume(ctx, run.ID); err != nil {
			s.log.Error("workflow scheduler: resume from timer", "run_id", run.ID, "error", err)
		}
	}
}

func (s *Scheduler) wakeEventTimeouts(ctx context.Context) {
	runs, err := s.exec.store.dueEventTimeouts(ctx, s.batchSize)
	if err != nil {
		s.log.Error("workflow scheduler: list event timeouts", "error", err)
		return
	}
	for _, run := range runs {
		full, err := s.exec.store.getRun(ctx, run.ID)
		if err != nil {
			s.log.Error("workflow scheduler: load timed-out run", "run_id", run.ID, "error", err)
			continue
		}
		name := "__event_" + full.WaitingForEvent
		now := s.clock.Now()
		if err := s.exec.store.saveStep(ctx, run.ID, &StepRecord{
			Name: name, Status: StepFailed, Error: errEventTimeout.Error(),
			StartedAt: &now, CompletedAt: &now,
		}); err != nil {
			s.log.Error("workflow scheduler: journal event timeout", "run_id", run.ID, "error", err)
			continue
		}
		if err := s.exec.Resume(ctx, run.ID); err != nil {
			s.log.Error("workflow scheduler: resume after event timeout", "run_id", run.ID, "error", err)
		}
	}
}

func (s *Scheduler) wakeEventArrivals(ctx context.Context) {
	arrivals, err := s.exec.store.dueEventArrivals(ctx, s.batchSize)
	if err != nil {
		s.log.Error("workflow scheduler: list event arrivals", "error", err)
		return
	}
	for _, a := range arrivals {
		payload := a.payload
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		now := s.clock.Now()
		if err := s.exec.store.saveStep(ctx, a.runID, &StepRecord{
			Name: "__event_" + a.eventName, Status: StepCompleted, Result: payload,
			StartedAt: &now, CompletedAt: &now,
		}); err != nil {
			s.log.Error("workflow scheduler: journal event arrival", "run_id", a.runID, "error", err)
			continue
		}
		if err := s.exec.store.consumeEvent(ctx, a.eventID); err != nil {
			s.log.Error("workflow scheduler: consume event", "event_id", a.eventID, "error", err)
			continue
		}
		if err := s.exec.Resume(ctx, a.runID); err != nil {
			s.log.Error("workflow scheduler: resume after event", "run_id", a.runID, "error", err)
		}
	}
}

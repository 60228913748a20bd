package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeStore is an in-memory store for unit-testing Ctx/Executor logic
// without a database.
type fakeStore struct {
	mu     sync.Mutex
	runs   map[string]*Run
	steps  map[string]map[string]*StepRecord
	events []*Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:  make(map[string]*Run),
		steps: make(map[string]map[string]*StepRecord),
	}
}

func (f *fakeStore) createRun(ctx context.Context, run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeStore) getRun(ctx context.Context, runID string) (*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) setRunning(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[runID].Status = StatusRunning
	return nil
}

func (f *fakeStore) completeRun(ctx context.Context, runID string, output json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status = StatusCompleted
	r.Output = output
	return nil
}

func (f *fakeStore) failRun(ctx context.Context, runID string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status = StatusFailed
	r.Error = errMsg
	return nil
}

func (f *fakeStore) resumeFromWait(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status = StatusRunning
	r.WakeAt = nil
	r.WaitingForEvent = ""
	r.EventTimeoutAt = nil
	r.SuspendedAt = nil
	return nil
}

func (f *fakeStore) dueTimerRuns(ctx context.Context, limit int) ([]*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Run
	for _, r := range f.runs {
		if r.Status == StatusWaiting && r.WaitingForEvent == "" && r.WakeAt != nil && !r.WakeAt.After(time.Now()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) dueEventTimeouts(ctx context.Context, limit int) ([]*Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Run
	for _, r := range f.runs {
		if r.Status == StatusWaiting && r.WaitingForEvent != "" && r.EventTimeoutAt != nil && !r.EventTimeoutAt.After(time.Now()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) dueEventArrivals(ctx context.Context, limit int) ([]eventArrival, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []eventArrival
	for _, ev := range f.events {
		if ev.ConsumedAt != nil {
			continue
		}
		r, ok := f.runs[ev.CorrelationID]
		if !ok || r.Status != StatusWaiting || r.WaitingForEvent != ev.EventName {
			continue
		}
		out = append(out, eventArrival{runID: r.ID, eventID: ev.ID, eventName: ev.EventName, payload: ev.Payload})
	}
	return out, nil
}

func (f *fakeStore) saveEvent(ctx context.Context, ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ev
	f.events = append(f.events, &cp)
	return nil
}

func (f *fakeStore) consumeEvent(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == eventID {
			now := time.Now()
			ev.ConsumedAt = &now
		}
	}
	return nil
}

func (f *fakeStore) getStep(ctx context.Context, runID, name string) (*StepRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.steps[runID]
	if !ok {
		return nil, false, nil
	}
	rec, ok := m[name]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (f *fakeStore) saveStep(ctx context.Context, runID string, rec *StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.steps[runID] == nil {
		f.steps[runID] = make(map[string]*StepRecord)
	}
	cp := *rec
	f.steps[runID][rec.Name] = &cp
	return nil
}

func (f *fakeStore) suspendSleep(ctx context.Context, runID string, wakeAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status = StatusWaiting
	r.WakeAt = &wakeAt
	return nil
}

func (f *fakeStore) suspendWaitForEvent(ctx context.Context, runID, eventName string, timeoutAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status = StatusWaiting
	r.WaitingForEvent = eventName
	r.EventTimeoutAt = &timeoutAt
	return nil
}

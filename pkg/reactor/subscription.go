package reactor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrymomot/forge/pkg/id"
)

// Kind distinguishes what a subscription tracks: a registered query's
// read set, a single job's progress, or a single workflow run's state.
type Kind string

const (
	KindQuery    Kind = "query"
	KindJob      Kind = "job"
	KindWorkflow Kind = "workflow"
)

// Subscription is one client's live interest in a query, job, or
// workflow run. Query subscriptions carry a ReadSet recorded from
// their last execution; job/workflow subscriptions key directly off
// an entity ID and never need read-set matching.
type Subscription struct {
	ID         string
	SessionID  string
	Kind       Kind
	QueryName  string
	Args       json.RawMessage
	EntityID   string // job ID or workflow run ID, for Kind != KindQuery
	ReadSet    *ReadSet
	CreatedAt  time.Time
	ExecutedAt time.Time
}

// Registry tracks every live subscription, indexed for fast lookup by
// session and (for queries) by affected table.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Subscription
	byJob  map[string]map[string]struct{} // job ID -> subscription IDs
	byRun  map[string]map[string]struct{} // workflow run ID -> subscription IDs
	bySess map[string]map[string]struct{} // session ID -> subscription IDs
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Subscription),
		byJob:  make(map[string]map[string]struct{}),
		byRun:  make(map[string]map[string]struct{}),
		bySess: make(map[string]map[string]struct{}),
	}
}

// Subscribe registers a query subscription and returns it.
func (r *Registry) Subscribe(sessionID, queryName string, args json.RawMessage) *Subscription {
	sub := &Subscription{
		ID:        id.New(),
		SessionID: sessionID,
		Kind:      KindQuery,
		QueryName: queryName,
		Args:      args,
		ReadSet:   NewReadSet(),
		CreatedAt: time.Now(),
	}
	r.add(sub)
	return sub
}

// SubscribeJob registers interest in a single job's lifecycle.
func (r *Registry) SubscribeJob(sessionID, jobID string) *Subscription {
	sub := &Subscription{ID: id.New(), SessionID: sessionID, Kind: KindJob, EntityID: jobID, CreatedAt: time.Now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ID] = sub
	r.index(sessionID, sub.ID, r.bySess)
	r.index(jobID, sub.ID, r.byJob)
	return sub
}

// SubscribeWorkflow registers interest in a single workflow run.
func (r *Registry) SubscribeWorkflow(sessionID, runID string) *Subscription {
	sub := &Subscription{ID: id.New(), SessionID: sessionID, Kind: KindWorkflow, EntityID: runID, CreatedAt: time.Now()}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ID] = sub
	r.index(sessionID, sub.ID, r.bySess)
	r.index(runID, sub.ID, r.byRun)
	return sub
}

func (r *Registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ID] = sub
	r.index(sub.SessionID, sub.ID, r.bySess)
}

func (r *Registry) index(key, subID string, m map[string]map[string]struct{}) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][subID] = struct{}{}
}

// RecordExecution updates sub's read set and execution timestamp after
// its query has been re-run.
func (r *Registry) RecordExecution(subID string, rs *ReadSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.byID[subID]; ok {
		sub.ReadSet = rs
		sub.ExecutedAt = time.Now()
	}
}

// Get returns the subscription by ID.
func (r *Registry) Get(subID string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[subID]
	return sub, ok
}

// Unsubscribe removes a subscription entirely.
func (r *Registry) Unsubscribe(subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byID[subID]
	if !ok {
		return
	}
	delete(r.byID, subID)
	delete(r.bySess[sub.SessionID], subID)
	switch sub.Kind {
	case KindJob:
		delete(r.byJob[sub.EntityID], subID)
	case KindWorkflow:
		delete(r.byRun[sub.EntityID], subID)
	}
}

// RemoveSession drops every subscription owned by sessionID, returning
// the removed IDs so callers (the adaptive tracker) can release their
// table/row accounting.
func (r *Registry) RemoveSession(sessionID string) []*Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.bySess[sessionID]
	removed := make([]*Subscription, 0, len(ids))
	for subID := range ids {
		sub := r.byID[subID]
		if sub == nil {
			continue
		}
		removed = append(removed, sub)
		delete(r.byID, subID)
		switch sub.Kind {
		case KindJob:
			delete(r.byJob[sub.EntityID], subID)
		case KindWorkflow:
			delete(r.byRun[sub.EntityID], subID)
		}
	}
	delete(r.bySess, sessionID)
	return removed
}

// FindAffected returns every query subscription whose read set is
// invalidated by change.
func (r *Registry) FindAffected(change Change) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	for _, sub := range r.byID {
		if sub.Kind != KindQuery || sub.ReadSet == nil {
			continue
		}
		if change.Invalidates(sub.ReadSet) {
			out = append(out, sub)
		}
	}
	return out
}

// SubscriptionsForJob returns every subscription watching jobID.
func (r *Registry) SubscriptionsForJob(jobID string) []*Subscription {
	return r.lookup(jobID, r.byJob)
}

// SubscriptionsForWorkflow returns every subscription watching runID.
func (r *Registry) SubscriptionsForWorkflow(runID string) []*Subscription {
	return r.lookup(runID, r.byRun)
}

func (r *Registry) lookup(key string, m map[string]map[string]struct{}) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := m[key]
	out := make([]*Subscription, 0, len(ids))
	for subID := range ids {
		if sub, ok := r.byID[subID]; ok {
			out = append(out, sub)
		}
	}
	return out
}

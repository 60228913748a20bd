package gateway

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/id"
)

// Session is one live WebSocket connection (spec.md §3). It owns the
// subscription bookkeeping needed to translate the client's opaque
// correlation ids into pkg/reactor subscription ids and back.
type Session struct {
	ID     string
	NodeID string
	send   chan []byte

	mu           sync.Mutex
	querySubs    map[string]string // client id -> reactor subscription id
	jobSubs      map[string]string // client id -> reactor subscription id
	workflowSubs map[string]string // client id -> reactor subscription id
}

func newSession(nodeID string) *Session {
	return &Session{
		ID:           id.New(),
		NodeID:       nodeID,
		send:         make(chan []byte, 256),
		querySubs:    make(map[string]string),
		jobSubs:      make(map[string]string),
		workflowSubs: make(map[string]string),
	}
}

func (s *Session) push(msg []byte) bool {
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) trackQuery(clientID, subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.querySubs[clientID] = subID
}

func (s *Session) trackJob(clientID, subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobSubs[clientID] = subID
}

func (s *Session) trackWorkflow(clientID, subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowSubs[clientID] = subID
}

func (s *Session) untrack(clientID string) (subID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, exists := s.querySubs[clientID]; exists {
		delete(s.querySubs, clientID)
		return v, true
	}
	if v, exists := s.jobSubs[clientID]; exists {
		delete(s.jobSubs, clientID)
		return v, true
	}
	if v, exists := s.workflowSubs[clientID]; exists {
		delete(s.workflowSubs, clientID)
		return v, true
	}
	return "", false
}

// clientIDFor returns the client-facing correlation id for an internal
// reactor subscription id, searching all three subscription kinds.
func (s *Session) clientIDFor(subID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range []map[string]string{s.querySubs, s.jobSubs, s.workflowSubs} {
		for clientID, v := range m {
			if v == subID {
				return clientID, true
			}
		}
	}
	return "", false
}

// sessionStore persists the sessions table row backing a Session
// (spec.md §3, migration 0005_sessions.sql): owned by the node that
// accepted the connection, removed on disconnect.
type sessionStore struct {
	pool *pgxpool.Pool
}

func (s *sessionStore) insert(ctx context.Context, sess *Session) error {
	const q = `INSERT INTO sessions (id, node_id, status) VALUES ($1, $2, 'connected')`
	if _, err := s.pool.Exec(ctx, q, sess.ID, sess.NodeID); err != nil {
		return ferrors.DatabaseFailure(err, "gateway: insert session")
	}
	return nil
}

func (s *sessionStore) touch(ctx context.Context, sessionID string) error {
	const q = `UPDATE sessions SET last_active_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return ferrors.DatabaseFailure(err, "gateway: touch session")
	}
	return nil
}

func (s *sessionStore) remove(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM sessions WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return ferrors.DatabaseFailure(err, "gateway: remove session")
	}
	return nil
}

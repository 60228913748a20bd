package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/pkg/reactor"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	pool := fakePool(t)
	r, err := reactor.New(pool)
	require.NoError(t, err)
	h, err := New(pool, r, nil, nil, "node-1")
	require.NoError(t, err)
	return h
}

func TestNew_RequiresPool(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil, nil, nil, "node-1")
	require.ErrorIs(t, err, ErrPoolRequired)
}

func TestHub_RegisterQueryAndDeliver(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	h.RegisterQuery("list_projects", []string{"projects"}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`[{"id":"p1"}]`), nil
	})

	sub, err := h.reactor.Subscribe("session-1", "list_projects", json.RawMessage(`{}`))
	require.NoError(t, err)

	sess := newSession("node-1")
	sess.ID = "session-1"
	sess.trackQuery("client-1", sub.ID)
	h.mu.Lock()
	h.live[sess.ID] = sess
	h.mu.Unlock()

	h.deliver(context.Background(), reactor.Ready{Subscription: sub})

	select {
	case msg := <-sess.send:
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(msg, &decoded))
		require.Equal(t, "data", decoded["type"])
		require.Equal(t, "client-1", decoded["id"])
	default:
		t.Fatal("expected a data message to be pushed")
	}
}

func TestHub_DeliverUnknownSessionIsNoop(t *testing.T) {
	t.Parallel()
	h := newTestHub(t)

	sub := &reactor.Subscription{ID: "sub-1", SessionID: "missing", Kind: reactor.KindQuery}
	h.deliver(context.Background(), reactor.Ready{Subscription: sub})
}

package reactor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_RequiresPool(t *testing.T) {
	t.Parallel()
	_, err := New(nil)
	require.ErrorIs(t, err, ErrPoolRequired)
}

func TestReactor_SubscribeUnknownQuery(t *testing.T) {
	t.Parallel()
	r, err := New(fakePool(t))
	require.NoError(t, err)

	_, err = r.Subscribe("session-1", "nope", nil)
	require.ErrorIs(t, err, ErrUnknownQuery)
}

func TestReactor_SubscribeSeedsReadSetFromQueryInfo(t *testing.T) {
	t.Parallel()
	r, err := New(fakePool(t))
	require.NoError(t, err)
	r.RegisterQuery(QueryInfo{Name: "list_projects", Tables: []string{"projects"}})

	sub, err := r.Subscribe("session-1", "list_projects", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, sub.ReadSet.IncludesTable("projects"))
	require.Equal(t, TrackingRow, r.adaptive.Mode("projects"))
}

func TestReactor_HandleEventDispatchesJobChange(t *testing.T) {
	t.Parallel()
	r, err := New(fakePool(t))
	require.NoError(t, err)

	sub := r.SubscribeJob("session-1", "job-123")

	r.handleEvent(Event{Change: &Change{Table: "jobs", Op: OpUpdate, RowID: "job-123"}})

	select {
	case ready := <-r.Ready():
		require.Equal(t, sub.ID, ready.Subscription.ID)
	default:
		t.Fatal("expected a ready event for the job subscription")
	}
}

func TestReactor_ResyncFlushesPending(t *testing.T) {
	t.Parallel()
	r, err := New(fakePool(t))
	require.NoError(t, err)
	r.RegisterQuery(QueryInfo{Name: "list_projects", Tables: []string{"projects"}})

	sub, err := r.Subscribe("session-1", "list_projects", nil)
	require.NoError(t, err)

	r.handleEvent(Event{Change: &Change{Table: "projects", Op: OpInsert}})
	r.handleEvent(Event{Resync: true})

	select {
	case ready := <-r.Ready():
		require.Equal(t, sub.ID, ready.Subscription.ID)
		require.True(t, ready.Resync)
	default:
		t.Fatal("expected resync to flush the pending subscription")
	}
}

func TestReactor_RemoveSessionReleasesAdaptiveTracking(t *testing.T) {
	t.Parallel()
	r, err := New(fakePool(t))
	require.NoError(t, err)
	r.RegisterQuery(QueryInfo{Name: "list_projects", Tables: []string{"projects"}})

	_, err = r.Subscribe("session-1", "list_projects", nil)
	require.NoError(t, err)
	require.NotEqual(t, TrackingNone, r.adaptive.Mode("projects"))

	r.RemoveSession("session-1")
	require.Equal(t, TrackingNone, r.adaptive.Mode("projects"))
}

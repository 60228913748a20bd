package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLeader struct{ leading bool }

func (f *fakeLeader) IsLeader() bool { return f.leading }

func TestNewRunner_RequiresPool(t *testing.T) {
	t.Parallel()
	_, err := NewRunner(nil, &fakeLeader{}, "node-1")
	require.ErrorIs(t, err, ErrPoolRequired)
}

func TestRunner_RegisterInvalidExpression(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(fakePool(t), &fakeLeader{}, "node-1")
	require.NoError(t, err)

	err = r.Register("bad", "not a cron expr", "", func(context.Context, time.Time, bool) error { return nil })
	require.Error(t, err)
}

func TestRunner_RegisterDefaults(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(fakePool(t), &fakeLeader{}, "node-1")
	require.NoError(t, err)

	require.NoError(t, r.Register("daily", "0 0 * * *", "UTC", func(context.Context, time.Time, bool) error { return nil }))

	entries := r.reg.list()
	require.Len(t, entries, 1)
	require.Equal(t, time.Minute, entries[0].timeout)
	require.False(t, entries[0].catchUp)
}

func TestRunner_RegisterWithCatchUpAndTimeout(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(fakePool(t), &fakeLeader{}, "node-1")
	require.NoError(t, err)

	require.NoError(t, r.Register("daily", "0 0 * * *", "UTC",
		func(context.Context, time.Time, bool) error { return nil },
		WithTimeout(5*time.Second),
		WithCatchUp(10),
	))

	entries := r.reg.list()
	require.Len(t, entries, 1)
	require.Equal(t, 5*time.Second, entries[0].timeout)
	require.True(t, entries[0].catchUp)
	require.Equal(t, 10, entries[0].catchUpLimit)
}

package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AddDuplicateRejected(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	e1 := &entry{name: "daily", timeout: time.Minute}
	e2 := &entry{name: "daily", timeout: time.Second}

	require.NoError(t, reg.add(e1))
	require.ErrorIs(t, reg.add(e2), ErrAlreadyExists)
	require.Len(t, reg.list(), 1)
}

func TestRegistry_List(t *testing.T) {
	t.Parallel()

	reg := newRegistry()
	require.NoError(t, reg.add(&entry{name: "a"}))
	require.NoError(t, reg.add(&entry{name: "b"}))
	require.Len(t, reg.list(), 2)
}

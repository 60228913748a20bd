package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func noop(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) { return input, nil }

func TestRegistry_AddDuplicateRejected(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	require.NoError(t, r.add("onboard", 1, noop))
	require.ErrorIs(t, r.add("onboard", 1, noop), ErrAlreadyExists)
}

func TestRegistry_DistinctVersionsCoexist(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	require.NoError(t, r.add("onboard", 1, noop))
	require.NoError(t, r.add("onboard", 2, noop))

	_, ok := r.get("onboard", 1)
	require.True(t, ok)
	_, ok = r.get("onboard", 2)
	require.True(t, ok)
}

func TestRegistry_LatestVersion(t *testing.T) {
	t.Parallel()
	r := newRegistry()
	require.NoError(t, r.add("onboard", 1, noop))
	require.NoError(t, r.add("onboard", 3, noop))
	require.NoError(t, r.add("onboard", 2, noop))

	v, ok := r.latestVersion("onboard")
	require.True(t, ok)
	require.Equal(t, 3, v)

	_, ok = r.latestVersion("unknown")
	require.False(t, ok)
}

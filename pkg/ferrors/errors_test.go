package ferrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

func TestIs(t *testing.T) {
	t.Parallel()

	t.Run("direct match", func(t *testing.T) {
		t.Parallel()
		err := ferrors.NotFound("job %s not found", "abc")
		require.True(t, ferrors.Is(err, ferrors.KindNotFound))
		require.False(t, ferrors.Is(err, ferrors.KindConflict))
	})

	t.Run("wrapped match", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("unique_violation")
		err := fmt.Errorf("claim: %w", ferrors.Conflict(cause, "cron %s already claimed", "nightly"))
		require.True(t, ferrors.Is(err, ferrors.KindConflict))
	})

	t.Run("unrelated error", func(t *testing.T) {
		t.Parallel()
		require.False(t, ferrors.Is(errors.New("plain"), ferrors.KindInternal))
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		require.False(t, ferrors.Is(nil, ferrors.KindInternal))
	})
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, ferrors.KindTimeout, ferrors.KindOf(ferrors.Timeout(nil, "step exceeded deadline")))
	require.Equal(t, ferrors.Kind(""), ferrors.KindOf(errors.New("plain")))
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := ferrors.DatabaseFailure(cause, "claim jobs")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "database_failure")
	require.Contains(t, err.Error(), "claim jobs")
}

package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_Next(t *testing.T) {
	t.Parallel()

	t.Run("fixed", func(t *testing.T) {
		t.Parallel()
		b := Backoff{Kind: BackoffFixed, Base: 2 * time.Second}
		require.Equal(t, 2*time.Second, b.Next(1))
		require.Equal(t, 2*time.Second, b.Next(5))
	})

	t.Run("linear", func(t *testing.T) {
		t.Parallel()
		b := Backoff{Kind: BackoffLinear, Base: time.Second}
		require.Equal(t, time.Second, b.Next(1))
		require.Equal(t, 3*time.Second, b.Next(3))
	})

	t.Run("exponential capped", func(t *testing.T) {
		t.Parallel()
		b := Backoff{Kind: BackoffExponential, Base: time.Second, Max: 10 * time.Second}
		require.Equal(t, time.Second, b.Next(1))
		require.Equal(t, 2*time.Second, b.Next(2))
		require.Equal(t, 4*time.Second, b.Next(3))
		require.Equal(t, 8*time.Second, b.Next(4))
		require.Equal(t, 10*time.Second, b.Next(5))
		require.Equal(t, 10*time.Second, b.Next(10))
	})

	t.Run("attempt below one treated as one", func(t *testing.T) {
		t.Parallel()
		b := Backoff{Kind: BackoffFixed, Base: time.Second}
		require.Equal(t, time.Second, b.Next(0))
	})
}

package forge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/pkg/ferrors"
)

func TestNew_RequiresPool(t *testing.T) {
	t.Parallel()
	app, err := New(nil, "node-1")
	require.Nil(t, app)
	require.True(t, ferrors.Is(err, ferrors.KindValidation))
}

package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/pkg/id"
)

func TestValidateUUID_Valid(t *testing.T) {
	t.Parallel()
	valid := id.New()
	got, err := validateUUID(valid, "job_id")
	require.NoError(t, err)
	require.NotEmpty(t, got)
}

func TestValidateUUID_Malformed(t *testing.T) {
	t.Parallel()
	_, err := validateUUID("not-a-uuid", "job_id")
	require.Error(t, err)
}

func TestValidateUUID_TooLong(t *testing.T) {
	t.Parallel()
	_, err := validateUUID(strings.Repeat("a", maxUUIDLen+1), "workflow_id")
	require.Error(t, err)
}

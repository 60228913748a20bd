package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/forge/config"
)

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/forge")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Gateway.Port)
	require.Equal(t, "postgres://u:p@localhost:5432/forge", cfg.Database.URL)
	require.Equal(t, 10, cfg.Worker.MaxConcurrentJobs)
}

func TestLoad_YAMLWithPlaceholder(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/forge")
	t.Setenv("GATEWAY_PORT_VALUE", "9000")

	dir := t.TempDir()
	path := filepath.Join(dir, "forge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  port: ${GATEWAY_PORT_VALUE}
node:
  roles:
    - worker
    - leader
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Gateway.Port)
}

func TestLoad_MissingRequiredField(t *testing.T) {
	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoad_InvalidObservabilityLevel(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/forge")
	t.Setenv("OBSERVABILITY_LEVEL", "verbose")

	_, err := config.Load("")
	require.Error(t, err)
}

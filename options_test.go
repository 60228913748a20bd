package forge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBuildConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()

	require.NotNil(t, cfg.logger)
	require.Equal(t, ":8080", cfg.address)
	require.Equal(t, []string{RoleWorker}, cfg.roles)
	require.Equal(t, 30*time.Second, cfg.shutdownTimeout)
	require.Equal(t, 30*time.Second, cfg.requestTimeout)
	require.Equal(t, "/health/live", cfg.livenessPath)
	require.Equal(t, "/health/ready", cfg.readinessPath)
	require.Equal(t, "/metrics", cfg.metricsPath)
	require.Equal(t, "/ws", cfg.wsPath)
	require.NotNil(t, cfg.healthChecks)
}

func TestWithRoles_IgnoresEmpty(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithRoles()(cfg)
	require.Equal(t, []string{RoleWorker}, cfg.roles)

	WithRoles(RoleWorker, RoleScheduler)(cfg)
	require.Equal(t, []string{RoleWorker, RoleScheduler}, cfg.roles)
}

func TestWithAddress_IgnoresEmpty(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithAddress("")(cfg)
	require.Equal(t, ":8080", cfg.address)

	WithAddress(":9090")(cfg)
	require.Equal(t, ":9090", cfg.address)
}

func TestWithShutdownTimeout_IgnoresNonPositive(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithShutdownTimeout(0)(cfg)
	require.Equal(t, 30*time.Second, cfg.shutdownTimeout)

	WithShutdownTimeout(5 * time.Second)(cfg)
	require.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestWithShutdownHook_AppendsInOrder(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	var order []int
	WithShutdownHook(func(context.Context) error { order = append(order, 1); return nil })(cfg)
	WithShutdownHook(func(context.Context) error { order = append(order, 2); return nil })(cfg)
	require.Len(t, cfg.shutdownHooks, 2)

	for _, hook := range cfg.shutdownHooks {
		require.NoError(t, hook(context.Background()))
	}
	require.Equal(t, []int{1, 2}, order)
}

func TestWithHealthCheck_RegistersByName(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithHealthCheck("postgres", func(context.Context) error { return nil })(cfg)
	require.Contains(t, cfg.healthChecks, "postgres")
}

func TestWithCronJob_AndWithWorkflow_Accumulate(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithCronJob("nightly", "0 2 * * *", "UTC", nil)(cfg)
	WithWorkflow("onboard_user", 1, nil)(cfg)

	require.Len(t, cfg.crons, 1)
	require.Equal(t, "nightly", cfg.crons[0].name)
	require.Len(t, cfg.workflows, 1)
	require.Equal(t, "onboard_user", cfg.workflows[0].name)
}

func TestWithQuery_RegistersAgainstTables(t *testing.T) {
	t.Parallel()
	cfg := newBuildConfig()
	WithQuery("list_x", []string{"x"}, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`[]`), nil
	})(cfg)

	require.Len(t, cfg.queries, 1)
	require.Equal(t, "list_x", cfg.queries[0].name)
	require.Equal(t, []string{"x"}, cfg.queries[0].tables)

	out, err := cfg.queries[0].fn(context.Background(), nil)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(out))
}

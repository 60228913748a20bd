package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCtx_StepCachesResult(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	calls := 0
	fn := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`"ok"`), nil
	}

	res1, err := wctx.Step("greet", fn)
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"ok"`), res1)

	res2, err := wctx.Step("greet", fn)
	require.NoError(t, err)
	require.Equal(t, res1, res2)
	require.Equal(t, 1, calls, "step should not re-execute once journaled")
}

func TestCtx_StepFailureIsCached(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	calls := 0
	boom := func(ctx context.Context) (json.RawMessage, error) {
		calls++
		return nil, errBoom
	}

	_, err := wctx.Step("risky", boom)
	require.ErrorIs(t, err, errBoom)

	_, err2 := wctx.Step("risky", boom)
	require.Error(t, err2)
	require.Equal(t, 1, calls)
}

func TestCtx_CompensateRunsInReverseOrder(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	var order []string
	undo := func(name string) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}

	_, err := wctx.StepWithCompensate("a", okStep, undo("a"))
	require.NoError(t, err)
	_, err = wctx.StepWithCompensate("b", okStep, undo("b"))
	require.NoError(t, err)

	require.NoError(t, wctx.Compensate(context.Background()))
	require.Equal(t, []string{"b", "a"}, order)
}

func TestCtx_SleepSuspendsThenCompletes(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	fs.runs["run-1"] = &Run{ID: "run-1", Status: StatusRunning}
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	err := wctx.Sleep(10 * 60 * 1e9) // 10 minutes in ns
	require.True(t, IsSuspended(err))
	require.Equal(t, StatusWaiting, fs.runs["run-1"].Status)

	// Resume: a fresh Ctx replays the same run and finds the sleep step
	// already completed, so it returns immediately.
	wctx2 := newCtx(context.Background(), fs, clock, "run-1", clock.Now())
	require.NoError(t, wctx2.Sleep(10*60*1e9))
}

func TestCtx_WaitForEventSuspendsThenDelivers(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	fs.runs["run-1"] = &Run{ID: "run-1", Status: StatusRunning}
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	_, err := wctx.WaitForEvent("verified", 3600*1e9)
	require.True(t, IsSuspended(err))
	require.Equal(t, "verified", fs.runs["run-1"].WaitingForEvent)

	// Simulate the scheduler journaling the delivered event.
	require.NoError(t, fs.saveStep(context.Background(), "run-1", &StepRecord{
		Name: "__event_verified", Status: StepCompleted, Result: json.RawMessage(`{"ok":true}`),
	}))

	wctx2 := newCtx(context.Background(), fs, clock, "run-1", clock.Now())
	payload, err := wctx2.WaitForEvent("verified", 3600*1e9)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(payload))
}

func TestCtx_ParallelStepsCompensatesOnFailure(t *testing.T) {
	t.Parallel()
	fs := newFakeStore()
	clock := clockwork.NewFakeClock()
	wctx := newCtx(context.Background(), fs, clock, "run-1", clock.Now())

	var compensated []string
	mkUndo := func(name string) compensator {
		return func(context.Context) error {
			compensated = append(compensated, name)
			return nil
		}
	}

	_, err := wctx.ParallelSteps([]ParallelStep{
		{Name: "reserve-a", Fn: okStep, Compensate: mkUndo("reserve-a")},
		{Name: "reserve-b", Fn: failStep, Compensate: mkUndo("reserve-b")},
	})
	require.Error(t, err)
	require.Contains(t, compensated, "reserve-a")
}

func okStep(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`true`), nil
}

func failStep(ctx context.Context) (json.RawMessage, error) {
	return nil, errBoom
}

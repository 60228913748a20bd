package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() (*Executor, *fakeStore) {
	fs := newFakeStore()
	e := &Executor{
		store: fs,
		reg:   newRegistry(),
		log:   defaultLogger(),
		// Wall-clock start: fakeStore's due checks compare against time.Now().
		clock: clockwork.NewFakeClockAt(time.Now()),
	}
	return e, fs
}

func TestExecutor_StartRunsToCompletion(t *testing.T) {
	t.Parallel()
	e, _ := newTestExecutor()
	require.NoError(t, e.Register("greet", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		return wctx.Step("say-hi", func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(`"hi"`), nil
		})
	}))

	run, err := e.Start(context.Background(), "greet", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, run.Status)
	require.Equal(t, json.RawMessage(`"hi"`), run.Output)
}

func TestExecutor_StartUnknownWorkflow(t *testing.T) {
	t.Parallel()
	e, _ := newTestExecutor()
	_, err := e.Start(context.Background(), "nope", nil)
	require.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestExecutor_StartSuspendsOnSleep(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	require.NoError(t, e.Register("wait-a-bit", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		if err := wctx.Sleep(time.Hour); err != nil {
			return nil, err
		}
		return json.RawMessage(`"done"`), nil
	}))

	run, err := e.Start(context.Background(), "wait-a-bit", nil)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, run.Status)
	require.NotNil(t, fs.runs[run.ID].WakeAt)
}

func TestExecutor_ResumeAfterSleep(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	require.NoError(t, e.Register("wait-a-bit", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		if err := wctx.Sleep(time.Hour); err != nil {
			return nil, err
		}
		return json.RawMessage(`"done"`), nil
	}))

	run, err := e.Start(context.Background(), "wait-a-bit", nil)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, run.Status)

	require.NoError(t, e.Resume(context.Background(), run.ID))
	require.Equal(t, StatusCompleted, fs.runs[run.ID].Status)
}

func TestExecutor_ResumeRejectsNonWaitingRun(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	fs.runs["run-x"] = &Run{ID: "run-x", Status: StatusCompleted}

	err := e.Resume(context.Background(), "run-x")
	require.ErrorIs(t, err, ErrNotResumable)
}

func TestExecutor_FailedRunIsCompensated(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	var compensated bool
	require.NoError(t, e.Register("flaky", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		if _, err := wctx.StepWithCompensate("reserve", okStep, func(context.Context) error {
			compensated = true
			return nil
		}); err != nil {
			return nil, err
		}
		return wctx.Step("boom", failStep)
	}))

	run, err := e.Start(context.Background(), "flaky", nil)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, run.Status)
	require.True(t, compensated)
	require.NotEmpty(t, fs.runs[run.ID].Error)
}

func TestScheduler_WakesDueTimerRun(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	require.NoError(t, e.Register("wait-a-bit", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		if err := wctx.Sleep(time.Millisecond); err != nil {
			return nil, err
		}
		return json.RawMessage(`"done"`), nil
	}))

	run, err := e.Start(context.Background(), "wait-a-bit", nil)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, run.Status)

	past := time.Now().Add(-time.Minute)
	fs.runs[run.ID].WakeAt = &past

	sched := NewScheduler(e, nil, WithSchedulerClock(e.clock))
	sched.tick(context.Background())

	require.Equal(t, StatusCompleted, fs.runs[run.ID].Status)
}

func TestScheduler_DeliversEventAndResumes(t *testing.T) {
	t.Parallel()
	e, fs := newTestExecutor()
	require.NoError(t, e.Register("approval", 1, func(wctx *Ctx, input json.RawMessage) (json.RawMessage, error) {
		payload, err := wctx.WaitForEvent("approved", time.Hour)
		if err != nil {
			return nil, err
		}
		return payload, nil
	}))

	run, err := e.Start(context.Background(), "approval", nil)
	require.NoError(t, err)
	require.Equal(t, StatusWaiting, run.Status)

	require.NoError(t, e.PostEvent(context.Background(), run.ID, "approved", json.RawMessage(`{"by":"alice"}`)))

	sched := NewScheduler(e, nil, WithSchedulerClock(e.clock))
	sched.tick(context.Background())

	require.Equal(t, StatusCompleted, fs.runs[run.ID].Status)
	require.JSONEq(t, `{"by":"alice"}`, string(fs.runs[run.ID].Output))
}

func TestNewScheduler_KeepsLeadership(t *testing.T) {
	t.Parallel()
	e, _ := newTestExecutor()
	sched := NewScheduler(e, &fakeLeaderWF{leading: false}, WithSchedulerClock(e.clock))
	require.False(t, sched.leader.IsLeader())
}

type fakeLeaderWF struct{ leading bool }

func (f *fakeLeaderWF) IsLeader() bool { return f.leading }

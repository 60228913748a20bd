package jobqueue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoPayload struct {
	Message string `json:"message"`
}

type echoTask struct {
	received chan echoPayload
}

func (t *echoTask) Name() string { return "echo" }

func (t *echoTask) Handle(_ context.Context, p echoPayload) error {
	t.received <- p
	return nil
}

func TestTaskRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()

	reg := newTaskRegistry()
	task := &echoTask{received: make(chan echoPayload, 1)}
	reg.register(task.Name(), newTaskWrapper[echoPayload](task))

	executor, ok := reg.get("echo")
	require.True(t, ok)

	raw, err := json.Marshal(echoPayload{Message: "hi"})
	require.NoError(t, err)

	require.NoError(t, executor.Execute(context.Background(), raw))
	require.Equal(t, echoPayload{Message: "hi"}, <-task.received)
}

func TestTaskRegistry_UnknownTask(t *testing.T) {
	t.Parallel()

	reg := newTaskRegistry()
	_, ok := reg.get("missing")
	require.False(t, ok)
}

func TestTaskWrapper_InvalidPayload(t *testing.T) {
	t.Parallel()

	task := &echoTask{received: make(chan echoPayload, 1)}
	wrapper := newTaskWrapper[echoPayload](task)

	err := wrapper.Execute(context.Background(), json.RawMessage(`{"message": 123}`))
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestTaskRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := newTaskRegistry()
	reg.register("a", newTaskWrapper[echoPayload](&echoTask{received: make(chan echoPayload, 1)}))
	reg.register("b", newTaskWrapper[echoPayload](&echoTask{received: make(chan echoPayload, 1)}))

	require.ElementsMatch(t, []string{"a", "b"}, reg.names())
}

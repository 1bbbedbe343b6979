package memory

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/task"
)

func TestService_Lifecycle(t *testing.T) {
	bus := event.New()
	defer bus.Close()
	var created, completed int32
	bus.On(event.TaskCreated, func(ctx context.Context, e *event.Event) error {
		atomic.AddInt32(&created, 1)
		return nil
	})
	bus.On(event.TaskCompleted, func(ctx context.Context, e *event.Event) error {
		atomic.AddInt32(&completed, 1)
		return nil
	})

	ctx := context.Background()
	queue := New(WithBus(bus))
	id, err := queue.AddTask(ctx, &task.Task{ActivityID: "manualApproval", ProcessID: "p1", CandidateGroups: []string{"approvers"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	pending, err := queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.StatusCreated, pending[0].Status)

	pending[0].Status = task.StatusCompleted
	stored, err := queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCreated, stored.Status, "returned tasks are copies")

	require.NoError(t, queue.CompleteTask(ctx, id, "alice", map[string]interface{}{"approved": true}))
	stored, err = queue.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, stored.Status)
	assert.Equal(t, "alice", stored.CompletedBy)
	assert.Equal(t, true, stored.Outputs["approved"])
	assert.NotNil(t, stored.CompletedAt)

	err = queue.CompleteTask(ctx, id, "bob", nil)
	var invalid *task.InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, task.StatusCompleted, invalid.Status)

	err = queue.CompleteTask(ctx, "missing", "bob", nil)
	var notFound *task.NotFoundError
	assert.True(t, errors.As(err, &notFound))
	_, err = queue.GetTask(ctx, "missing")
	assert.True(t, errors.As(err, &notFound))

	pending, err = queue.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&created) == 1 && atomic.LoadInt32(&completed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestService_ConcurrentComplete(t *testing.T) {
	ctx := context.Background()
	queue := New()
	id, err := queue.AddTask(ctx, &task.Task{ActivityID: "review", ProcessID: "p1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if queue.CompleteTask(ctx, id, "user", nil) == nil {
				atomic.AddInt32(&succeeded, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded)
}

func TestAutoComplete(t *testing.T) {
	ctx := context.Background()
	queue := New()
	_, err := queue.AddTask(ctx, &task.Task{ActivityID: "review", ProcessID: "p1"})
	require.NoError(t, err)
	_, err = queue.AddTask(ctx, &task.Task{ActivityID: "skip", ProcessID: "p1"})
	require.NoError(t, err)

	stop := task.AutoComplete(ctx, queue, queue, func(t *task.Task) (string, map[string]interface{}, bool) {
		return "bot", map[string]interface{}{"ok": true}, t.ActivityID == "review"
	}, 5*time.Millisecond)
	defer stop()

	assert.Eventually(t, func() bool {
		pending, _ := queue.ListPending(ctx)
		return len(pending) == 1 && pending[0].ActivityID == "skip"
	}, time.Second, 5*time.Millisecond)
}

type brokenBus struct{}

func (brokenBus) Emit(ctx context.Context, name string, payload interface{}) error {
	return errors.New("bus closed")
}

func (brokenBus) On(name string, handler event.Handler) func() { return func() {} }

func TestService_PublishFailureLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	queue := New(WithBus(brokenBus{}), WithLogger(logger))

	ctx := context.Background()
	id, err := queue.AddTask(ctx, &task.Task{ActivityID: "review", ProcessID: "p1"})
	require.NoError(t, err)
	require.NoError(t, queue.CompleteTask(ctx, id, "alice", map[string]interface{}{"approved": true}))

	output := buf.String()
	assert.Contains(t, output, "failed to emit task event")
	assert.Contains(t, output, event.TaskCreated)
	assert.Contains(t, output, event.TaskCompleted)
	assert.Contains(t, output, "bus closed")
}

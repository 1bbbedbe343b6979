package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/service/event"
)

func TestNext(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)
	at, err := Next(&graph.Timer{Duration: "90s"}, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Second), at)

	at, err = Next(&graph.Timer{Cron: "0 12 * * *"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), at)

	_, err = Next(&graph.Timer{Cron: "bogus"}, now)
	assert.Error(t, err)
	_, err = Next(nil, now)
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	bus := event.New()
	defer bus.Close()
	var mu sync.Mutex
	var fired []event.TimerFiredPayload
	bus.On(event.TimerFired, func(ctx context.Context, e *event.Event) error {
		payload := event.TimerFiredPayload{}
		if err := event.Decode(e.Data, &payload); err != nil {
			return err
		}
		mu.Lock()
		fired = append(fired, payload)
		mu.Unlock()
		return nil
	})

	scheduler := New(bus)
	ctx := context.Background()
	firstID, _, err := scheduler.Schedule(ctx, "p1", "wait", &graph.Timer{Duration: "10ms"})
	require.NoError(t, err)
	cancelledID, _, err := scheduler.Schedule(ctx, "p1", "reminder", &graph.Timer{Duration: "20ms"})
	require.NoError(t, err)
	_, _, err = scheduler.Schedule(ctx, "p2", "later", &graph.Timer{Duration: "1h"})
	require.NoError(t, err)
	assert.True(t, scheduler.Cancel(cancelledID))
	assert.False(t, scheduler.Cancel(cancelledID))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, event.TimerFiredPayload{ProcessID: "p1", ActivityID: "wait", TimerID: firstID}, fired[0])
	mu.Unlock()

	assert.Equal(t, 1, scheduler.Pending())
	assert.Equal(t, 1, scheduler.CancelProcess("p2"))
	scheduler.Shutdown()
	_, _, err = scheduler.Schedule(ctx, "p3", "x", &graph.Timer{Duration: "1ms"})
	assert.Error(t, err)
}

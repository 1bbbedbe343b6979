package task

import (
	"context"
	"time"
)

// DecisionFunc decides whether to complete a pending task; it returns the
// completing user id, the outputs and true to complete.
type DecisionFunc func(t *Task) (userID string, outputs map[string]interface{}, ok bool)

// AutoComplete starts a goroutine that polls ListPending and completes every
// task accepted by fn through completer. It returns stop(); cancelling ctx
// also stops it.
func AutoComplete(ctx context.Context, queue Queue, completer Completer, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pending, _ := queue.ListPending(ctx)
				for _, t := range pending {
					if userID, outputs, ok := fn(t); ok {
						_ = completer.CompleteTask(ctx, t.ID, userID, outputs)
					}
				}
			}
		}
	}()
	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		<-stopped
	}
}

// AutoApprove completes every pending task as userID with fixed outputs.
func AutoApprove(ctx context.Context, queue Queue, completer Completer, userID string, outputs map[string]interface{}, interval time.Duration) func() {
	return AutoComplete(ctx, queue, completer, func(*Task) (string, map[string]interface{}, bool) {
		return userID, outputs, true
	}, interval)
}

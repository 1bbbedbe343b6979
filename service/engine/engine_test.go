package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/progress"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/activity"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 5 * time.Second

func newTestEngine(t *testing.T, local *registry.Local, options ...Option) *Engine {
	t.Helper()
	options = append([]Option{
		WithRegistry(local),
		WithRetryDefaults(activity.RetryDefaults{Type: activity.RetryFixed, Delay: time.Millisecond}),
	}, options...)
	e := New(options...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, e.Shutdown(context.Background()))
	})
	return e
}

func orderWorkflow() *model.Workflow {
	workflow := model.NewWorkflow("order").WithVersion("1").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewService("svcA", "payments", "quote").WithOutput("quote", "quote"),
		graph.NewGateway("gw", graph.GatewayExclusive),
		graph.NewUser("manualApproval", "", "approvers"),
		graph.NewService("pay", "payments", "charge"),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "svcA", "gw")
	workflow.AddTransition("gw", "manualApproval", "amount > 100")
	workflow.AddTransition("gw", "pay", "")
	workflow.Connect("manualApproval", "pay", "end")
	return workflow
}

func paymentsRegistry(charged *int32) *registry.Local {
	local := registry.NewLocal()
	local.RegisterFunc("payments", "quote", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"quote": 42}, nil
	})
	local.RegisterFunc("payments", "charge", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		atomic.AddInt32(charged, 1)
		return map[string]interface{}{"charged": true}, nil
	})
	return local
}

func TestEngine_AmountScenario(t *testing.T) {
	testCases := []struct {
		description string
		amount      int
		expectTask  bool
	}{
		{description: "small amount goes straight to payment", amount: 50},
		{description: "large amount requires approval", amount: 500, expectTask: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			var charged int32
			e := newTestEngine(t, paymentsRegistry(&charged))
			var mu sync.Mutex
			var events []string
			e.Bus().On(event.All, func(ctx context.Context, evt *event.Event) error {
				mu.Lock()
				events = append(events, evt.Name)
				mu.Unlock()
				return nil
			})
			ctx := context.Background()
			_, err := e.RegisterWorkflow(ctx, orderWorkflow())
			require.NoError(t, err)

			id, err := e.StartProcess(ctx, "order", "alice", map[string]interface{}{"amount": testCase.amount})
			require.NoError(t, err)
			snapshot, err := e.Wait(ctx, id, waitTimeout)
			require.NoError(t, err)

			pending, err := e.TaskQueue().ListPending(ctx)
			require.NoError(t, err)
			if !testCase.expectTask {
				assert.Equal(t, execution.StatusCompleted, snapshot.Status)
				assert.Empty(t, pending)
				assert.Empty(t, snapshot.History.Filter(execution.EntryTaskCreated))
				assert.Equal(t, []string{"start", "svcA", "gw", "pay", "end"}, snapshot.CompletedActivities)
				assert.Equal(t, int32(1), atomic.LoadInt32(&charged))
				assert.Equal(t, 42, snapshot.Variables["quote"])
				assert.Eventually(t, func() bool {
					mu.Lock()
					defer mu.Unlock()
					return contains(events, event.ProcessStarted) && contains(events, event.ProcessCompleted)
				}, waitTimeout, 5*time.Millisecond)
				return
			}

			assert.Equal(t, execution.StatusWaiting, snapshot.Status)
			require.Len(t, pending, 1)
			assert.Equal(t, "manualApproval", pending[0].ActivityID)
			assert.Equal(t, id, pending[0].ProcessID)
			assert.Equal(t, []string{"approvers"}, pending[0].CandidateGroups)
			assert.Equal(t, []string{"manualApproval"}, snapshot.CurrentActivities)
			assert.Equal(t, int32(0), atomic.LoadInt32(&charged))

			require.NoError(t, e.CompleteTask(ctx, pending[0].ID, "bob", map[string]interface{}{"approved": true}))
			snapshot, err = e.Wait(ctx, id, waitTimeout)
			require.NoError(t, err)
			assert.Equal(t, execution.StatusCompleted, snapshot.Status)
			assert.Equal(t, true, snapshot.Variables["approved"])
			assert.Equal(t, int32(1), atomic.LoadInt32(&charged))
			assert.Len(t, snapshot.History.Filter(execution.EntryTaskCreated), 1)

			completed, err := e.TaskQueue().GetTask(ctx, pending[0].ID)
			require.NoError(t, err)
			assert.Equal(t, task.StatusCompleted, completed.Status)
			assert.Equal(t, "bob", completed.CompletedBy)
		})
	}
}

func TestEngine_CompleteTaskErrors(t *testing.T) {
	var charged int32
	e := newTestEngine(t, paymentsRegistry(&charged))
	ctx := context.Background()
	_, err := e.RegisterWorkflow(ctx, orderWorkflow())
	require.NoError(t, err)
	id, err := e.StartProcess(ctx, "order@1", "alice", map[string]interface{}{"amount": 500})
	require.NoError(t, err)
	_, err = e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	before, err := e.GetProcessInstance(ctx, id)
	require.NoError(t, err)

	err = e.CompleteTask(ctx, "missing", "bob", nil)
	var notFound *task.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.TaskID)

	pending, err := e.TaskQueue().ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, e.CompleteTask(ctx, pending[0].ID, "bob", nil))
	done, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	require.Equal(t, execution.StatusCompleted, done.Status)

	err = e.CompleteTask(ctx, pending[0].ID, "carol", nil)
	var invalid *task.InvalidStateError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, task.StatusCompleted, invalid.Status)

	after, err := e.GetProcessInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, len(done.History), len(after.History), "rejected completion must not change the instance")
	assert.Len(t, before.History.Filter(execution.EntryTaskCompleted), 0)
}

func TestEngine_Retries(t *testing.T) {
	var calls int32
	local := registry.NewLocal()
	local.RegisterFunc("flaky", "call", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	})
	e := newTestEngine(t, local)
	ctx := context.Background()

	workflow := model.NewWorkflow("retry").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewService("svc", "flaky", "call").WithRetries(2),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "svc", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "retry", "", nil)
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	assert.Equal(t, execution.StatusFailed, snapshot.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Contains(t, snapshot.Error, "boom")
	assert.Len(t, snapshot.History.Filter(execution.EntryActivityRetry), 2)
	assert.Len(t, snapshot.History.Filter(execution.EntryActivityFailed), 3)
	assert.Empty(t, snapshot.Tokens)
	assert.NotNil(t, snapshot.EndedAt)

}

func TestEngine_Compensation(t *testing.T) {
	var mu sync.Mutex
	var undone []string
	local := registry.NewLocal()
	local.RegisterFunc("ledger", "post", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	local.RegisterFunc("ledger", "reject", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("rejected")
	})
	for _, operation := range []string{"undoA", "undoB", "undoC"} {
		operation := operation
		local.RegisterFunc("ledger", operation, func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
			mu.Lock()
			undone = append(undone, operation)
			mu.Unlock()
			if operation == "undoB" {
				return nil, errors.New("ledger offline")
			}
			return nil, nil
		})
	}
	e := newTestEngine(t, local)
	ctx := context.Background()

	workflow := model.NewWorkflow("saga").WithStart("A").WithEnd("end")
	workflow.AddActivity(
		graph.NewService("A", "ledger", "post").WithCompensation(graph.CompensateWithService("ledger", "undoA", nil)),
		graph.NewService("B", "ledger", "post").WithCompensation(graph.CompensateWithService("ledger", "undoB", nil)),
		graph.NewService("C", "ledger", "post").WithCompensation(graph.CompensateWithService("ledger", "undoC", nil)),
		graph.NewService("D", "ledger", "reject"),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("A", "B", "C", "D", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "saga", "", nil)
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	assert.Equal(t, execution.StatusFailed, snapshot.Status)
	mu.Lock()
	assert.Equal(t, []string{"undoC", "undoB", "undoA"}, undone)
	mu.Unlock()
	require.Len(t, snapshot.CompensationErrors, 1)
	assert.Contains(t, snapshot.CompensationErrors[0], "ledger offline")
	assert.Equal(t, []string{"C", "B", "A"}, snapshot.History.Filter(execution.EntryCompensation).Activities())
}

func TestEngine_ParallelJoin(t *testing.T) {
	delays := [][]time.Duration{
		{1 * time.Millisecond, 5 * time.Millisecond, 10 * time.Millisecond},
		{10 * time.Millisecond, 5 * time.Millisecond, 1 * time.Millisecond},
		{5 * time.Millisecond, 10 * time.Millisecond, 1 * time.Millisecond},
		{0, 0, 0},
	}
	for i, permutation := range delays {
		t.Run(fmt.Sprintf("permutation %d", i), func(t *testing.T) {
			var after int32
			local := registry.NewLocal()
			for j, branch := range []string{"a", "b", "c"} {
				delay := permutation[j]
				local.RegisterFunc("branch", branch, func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
					time.Sleep(delay)
					return map[string]interface{}{}, nil
				})
			}
			local.RegisterFunc("branch", "after", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
				atomic.AddInt32(&after, 1)
				return map[string]interface{}{}, nil
			})
			e := newTestEngine(t, local)
			ctx := context.Background()

			workflow := model.NewWorkflow("fork").WithStart("start").WithEnd("end")
			workflow.AddActivity(
				graph.NewScript("start", "true"),
				graph.NewGateway("split", graph.GatewayParallel),
				graph.NewService("a", "branch", "a"),
				graph.NewService("b", "branch", "b"),
				graph.NewService("c", "branch", "c"),
				graph.NewGateway("join", graph.GatewayParallel),
				graph.NewService("after", "branch", "after"),
				graph.NewScript("end", "true"),
			)
			workflow.Connect("start", "split")
			for _, branch := range []string{"a", "b", "c"} {
				workflow.Connect("split", branch, "join")
			}
			workflow.Connect("join", "after", "end")
			_, err := e.RegisterWorkflow(ctx, workflow)
			require.NoError(t, err)

			id, err := e.StartProcess(ctx, "fork", "", nil)
			require.NoError(t, err)
			snapshot, err := e.Wait(ctx, id, waitTimeout)
			require.NoError(t, err)

			assert.Equal(t, execution.StatusCompleted, snapshot.Status)
			assert.Equal(t, int32(1), atomic.LoadInt32(&after))
			assert.Len(t, snapshot.History.Filter(execution.EntryJoinArrived), 3)
			assert.ElementsMatch(t, []string{"start", "split", "a", "b", "c", "join", "after", "end"}, snapshot.CompletedActivities)
		})
	}
}

func TestEngine_ExclusiveFirstMatch(t *testing.T) {
	e := newTestEngine(t, registry.NewLocal())
	ctx := context.Background()
	workflow := model.NewWorkflow("choice").WithStart("gw").WithEnd("end")
	workflow.AddActivity(
		graph.NewGateway("gw", graph.GatewayExclusive),
		graph.NewScript("x", `"x"`),
		graph.NewScript("y", `"y"`),
		graph.NewScript("z", `"z"`),
		graph.NewScript("end", "true"),
	)
	workflow.AddTransition("gw", "x", "false")
	workflow.AddTransition("gw", "y", "true")
	workflow.AddTransition("gw", "z", "true")
	workflow.Connect("x", "end")
	workflow.Connect("y", "end")
	workflow.Connect("z", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "choice", "", nil)
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, snapshot.Status)
	assert.Equal(t, []string{"gw", "y", "end"}, snapshot.CompletedActivities)
	assert.Equal(t, "y", snapshot.Variables["result"])
}

func inclusiveWorkflow() *model.Workflow {
	workflow := model.NewWorkflow("inclusive").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewGateway("fork", graph.GatewayInclusive),
		graph.NewScript("small", "1"),
		graph.NewScript("medium", "2"),
		graph.NewScript("large", "3"),
		graph.NewGateway("merge", graph.GatewayInclusive),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "fork")
	workflow.AddTransition("fork", "small", "amount > 10")
	workflow.AddTransition("fork", "medium", "amount > 100")
	workflow.AddTransition("fork", "large", "amount > 1000")
	workflow.Connect("small", "merge")
	workflow.Connect("medium", "merge")
	workflow.Connect("large", "merge")
	workflow.Connect("merge", "end")
	return workflow
}

func TestEngine_InclusiveGateway(t *testing.T) {
	e := newTestEngine(t, registry.NewLocal())
	ctx := context.Background()
	_, err := e.RegisterWorkflow(ctx, inclusiveWorkflow())
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "inclusive", "", map[string]interface{}{"amount": 500})
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, snapshot.Status)
	assert.ElementsMatch(t, []string{"start", "fork", "small", "medium", "merge", "end"}, snapshot.CompletedActivities)
	assert.Len(t, snapshot.History.Filter(execution.EntryJoinArrived), 2)

	id, err = e.StartProcess(ctx, "inclusive", "", map[string]interface{}{"amount": 1})
	require.NoError(t, err)
	snapshot, err = e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Error, "no matching outgoing transition")
	assert.Empty(t, snapshot.History.Filter(execution.EntryActivityRetry))
}

func timerWorkflow(duration string) *model.Workflow {
	workflow := model.NewWorkflow("timer").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewTimer("wait", duration),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "wait", "end")
	return workflow
}

func TestEngine_Timer(t *testing.T) {
	ctx := context.Background()

	t.Run("fires through the bus", func(t *testing.T) {
		e := newTestEngine(t, registry.NewLocal())
		_, err := e.RegisterWorkflow(ctx, timerWorkflow("10ms"))
		require.NoError(t, err)
		id, err := e.StartProcess(ctx, "timer", "", nil)
		require.NoError(t, err)
		assert.Eventually(t, func() bool {
			snapshot, err := e.GetProcessInstance(ctx, id)
			return err == nil && snapshot.Status == execution.StatusCompleted
		}, waitTimeout, 5*time.Millisecond)
		snapshot, err := e.GetProcessInstance(ctx, id)
		require.NoError(t, err)
		assert.Len(t, snapshot.History.Filter(execution.EntryTimerScheduled), 1)
		assert.Len(t, snapshot.History.Filter(execution.EntryTimerFired), 1)
	})

	t.Run("manual resume and stale events", func(t *testing.T) {
		e := newTestEngine(t, registry.NewLocal())
		_, err := e.RegisterWorkflow(ctx, timerWorkflow("1h"))
		require.NoError(t, err)
		id, err := e.StartProcess(ctx, "timer", "", nil)
		require.NoError(t, err)
		snapshot, err := e.Wait(ctx, id, waitTimeout)
		require.NoError(t, err)
		require.Equal(t, execution.StatusWaiting, snapshot.Status)
		assert.Equal(t, 1, e.timers.Pending())

		assert.NoError(t, e.HandleTimerFired(ctx, "unknown", "wait"))
		assert.NoError(t, e.HandleTimerFired(ctx, id, "start"), "nothing parked on start")
		snapshot, err = e.GetProcessInstance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, execution.StatusWaiting, snapshot.Status)

		require.NoError(t, e.HandleTimerFired(ctx, id, "wait"))
		snapshot, err = e.GetProcessInstance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, execution.StatusCompleted, snapshot.Status)
		assert.Equal(t, 0, e.timers.Pending())

		assert.NoError(t, e.HandleTimerFired(ctx, id, "wait"), "finished instance ignores timers")
	})
}

func TestEngine_Terminate(t *testing.T) {
	started := make(chan struct{})
	var cancelled int32
	local := registry.NewLocal()
	local.RegisterFunc("slow", "run", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
		return nil, ctx.Err()
	})
	e := newTestEngine(t, local)
	ctx := context.Background()
	workflow := model.NewWorkflow("slow").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewService("run", "slow", "run").WithCompensation(graph.CompensateWithScript("1")),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "run", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "slow", "alice", nil)
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatal("service was not called")
	}
	assert.Len(t, e.ListActiveInstances(ctx), 1)

	require.NoError(t, e.TerminateProcess(ctx, id, "operator abort"))
	snapshot, err := e.GetProcessInstance(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusTerminated, snapshot.Status)
	assert.Equal(t, "operator abort", snapshot.Reason)
	assert.Empty(t, snapshot.Tokens)
	assert.Empty(t, snapshot.History.Filter(execution.EntryCompensation))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&cancelled) == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Empty(t, e.ListActiveInstances(ctx))

	assert.ErrorIs(t, e.TerminateProcess(ctx, id, "again"), ErrProcessTerminal)
	assert.ErrorIs(t, e.TerminateProcess(ctx, "unknown", ""), ErrProcessNotFound)
}

func TestEngine_Registration(t *testing.T) {
	e := New()
	ctx := context.Background()

	_, err := e.StartProcess(ctx, "order", "", nil)
	assert.ErrorIs(t, err, ErrNotStarted)

	id, err := e.RegisterWorkflow(ctx, orderWorkflow())
	require.NoError(t, err)
	assert.Equal(t, "order", id)
	_, err = e.RegisterWorkflow(ctx, orderWorkflow())
	assert.ErrorIs(t, err, ErrDuplicateWorkflow)
	_, err = e.RegisterWorkflow(ctx, orderWorkflow().WithVersion("2"))
	require.NoError(t, err)

	latest, err := e.Workflow("order")
	require.NoError(t, err)
	assert.Equal(t, "2", latest.Version)
	first, err := e.Workflow("order@1")
	require.NoError(t, err)
	assert.Equal(t, "1", first.Version)
	_, err = e.Workflow("order@3")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	invalid := orderWorkflow().WithVersion("3")
	invalid.Start = ""
	invalid.End = nil
	_, err = e.RegisterWorkflow(ctx, invalid)
	var definitionErr *model.InvalidDefinitionError
	require.True(t, errors.As(err, &definitionErr))
	assert.GreaterOrEqual(t, len(definitionErr.Issues), 2)
	assert.NoError(t, e.Shutdown(ctx))
}

func TestEngine_Cleanup(t *testing.T) {
	var charged int32
	e := newTestEngine(t, paymentsRegistry(&charged))
	ctx := context.Background()
	_, err := e.RegisterWorkflow(ctx, orderWorkflow())
	require.NoError(t, err)

	waiting, err := e.StartProcess(ctx, "order", "", map[string]interface{}{"amount": 500})
	require.NoError(t, err)
	done, err := e.StartProcess(ctx, "order", "", map[string]interface{}{"amount": 5})
	require.NoError(t, err)
	_, err = e.Wait(ctx, waiting, waitTimeout)
	require.NoError(t, err)
	_, err = e.Wait(ctx, done, waitTimeout)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Cleanup(ctx, waiting), ErrProcessActive)
	require.NoError(t, e.Cleanup(ctx, done))
	assert.ErrorIs(t, e.Cleanup(ctx, done), ErrProcessNotFound)

	archived, err := e.GetProcessInstance(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, archived.Status)

	active := e.ListActiveInstances(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, waiting, active[0].ID)

	_, err = e.GetProcessInstance(ctx, "missing")
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}

func TestEngine_Progress(t *testing.T) {
	var charged, updates int32
	var tracked atomic.Bool
	local := paymentsRegistry(&charged)
	local.RegisterFunc("payments", "quote", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		_, ok := progress.FromContext(ctx)
		tracked.Store(ok)
		return map[string]interface{}{"quote": 1}, nil
	})
	e := newTestEngine(t, local, WithProgressListener(func(progress.Counters) {
		atomic.AddInt32(&updates, 1)
	}))
	ctx := context.Background()
	_, err := e.RegisterWorkflow(ctx, orderWorkflow())
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "order", "alice", map[string]interface{}{"amount": 500})
	require.NoError(t, err)
	_, err = e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	counters, err := e.Progress(id)
	require.NoError(t, err)
	assert.Equal(t, id, counters.ProcessID)
	assert.Equal(t, "order@1", counters.Workflow)
	assert.Equal(t, 4, counters.Started)
	assert.Equal(t, 3, counters.Completed)
	assert.Equal(t, 1, counters.Waiting)
	assert.Equal(t, 0, counters.Running)
	assert.True(t, tracked.Load())

	pending, err := e.TaskQueue().ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, e.CompleteTask(ctx, pending[0].ID, "bob", nil))
	_, err = e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	counters, err = e.Progress(id)
	require.NoError(t, err)
	assert.Equal(t, 5, counters.Started)
	assert.Equal(t, 5, counters.Completed)
	assert.Equal(t, 0, counters.Waiting)
	assert.Positive(t, atomic.LoadInt32(&updates))

	_, err = e.Progress("missing")
	assert.True(t, errors.Is(err, ErrProcessNotFound))
}

func TestEngine_TaskOutputsWithMapping(t *testing.T) {
	e := newTestEngine(t, registry.NewLocal())
	ctx := context.Background()
	workflow := model.NewWorkflow("review").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewUser("review", "").WithOutput("decision", "approved"),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "review", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "review", "", nil)
	require.NoError(t, err)
	_, err = e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	pending, err := e.TaskQueue().ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, e.CompleteTask(ctx, pending[0].ID, "bob", map[string]interface{}{"approved": true, "note": "ok"}))
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCompleted, snapshot.Status)
	assert.Equal(t, true, snapshot.Variables["approved"])
	assert.Equal(t, "ok", snapshot.Variables["note"])
	assert.Equal(t, true, snapshot.Variables["decision"])
}

func TestEngine_RetriedJoin(t *testing.T) {
	e := newTestEngine(t, registry.NewLocal())
	ctx := context.Background()
	workflow := model.NewWorkflow("fork").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "true"),
		graph.NewGateway("split", graph.GatewayParallel),
		graph.NewScript("a", "true"),
		graph.NewScript("c", "true"),
		graph.NewGateway("join", graph.GatewayParallel).WithInput("bad", "missing - 1").WithRetries(1),
		graph.NewScript("end", "true"),
	)
	workflow.Connect("start", "split")
	workflow.Connect("split", "a", "join")
	workflow.Connect("split", "c", "join")
	workflow.Connect("join", "end")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "fork", "", nil)
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	assert.Equal(t, execution.StatusFailed, snapshot.Status)
	assert.Len(t, snapshot.History.Filter(execution.EntryJoinArrived), 2)
	assert.Len(t, snapshot.History.Filter(execution.EntryActivityRetry), 1)
	assert.Len(t, snapshot.History.Filter(execution.EntryActivityFailed), 2)
	assert.NotContains(t, snapshot.CompletedActivities, "join")
}

func TestEngine_RetryBudgetPerVisit(t *testing.T) {
	var calls int32
	local := registry.NewLocal()
	local.RegisterFunc("flaky", "call", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		if atomic.AddInt32(&calls, 1)%2 == 1 {
			return nil, errors.New("first attempt fails")
		}
		return map[string]interface{}{}, nil
	})
	e := newTestEngine(t, local)
	ctx := context.Background()
	workflow := model.NewWorkflow("loop").WithStart("start").WithEnd("end")
	workflow.AddActivity(
		graph.NewScript("start", "result"),
		graph.NewService("svc", "flaky", "call").WithRetries(1),
		graph.NewScript("bump", "result + 1"),
		graph.NewGateway("gw", graph.GatewayExclusive),
		graph.NewScript("end", "result"),
	)
	workflow.Connect("start", "svc", "bump", "gw")
	workflow.AddTransition("gw", "svc", "result < 2")
	workflow.AddTransition("gw", "end", "")
	_, err := e.RegisterWorkflow(ctx, workflow)
	require.NoError(t, err)

	id, err := e.StartProcess(ctx, "loop", "", map[string]interface{}{"result": 0})
	require.NoError(t, err)
	snapshot, err := e.Wait(ctx, id, waitTimeout)
	require.NoError(t, err)

	assert.Equal(t, execution.StatusCompleted, snapshot.Status)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, snapshot.Variables["result"])
	assert.Len(t, snapshot.History.Filter(execution.EntryActivityRetry), 2)
}

package procflow_test

import (
	"context"
	"embed"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "github.com/viant/afs/embed"
	"github.com/viant/procflow"
	"github.com/viant/procflow/policy"
	"github.com/viant/procflow/runtime/execution"
)

//go:embed testdata/*
var embedFS embed.FS

func newService(t *testing.T, options ...procflow.Option) *procflow.Runtime {
	t.Helper()
	options = append([]procflow.Option{
		procflow.WithMetaFsOptions(&embedFS),
		procflow.WithMetaBaseURL("embed:///testdata"),
	}, options...)
	srv, err := procflow.New(options...)
	require.NoError(t, err)
	runtime := srv.Runtime()
	require.NoError(t, runtime.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, runtime.Shutdown(context.Background()))
	})
	return runtime
}

func TestService(t *testing.T) {
	testCases := []struct {
		description string
		amount      int
		approve     bool
	}{
		{description: "below threshold", amount: 5},
		{description: "approval required", amount: 500, approve: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			runtime := newService(t)
			ctx := context.Background()
			workflow, err := runtime.DeployWorkflow(ctx, "approval")
			require.NoError(t, err)
			assert.Equal(t, "approval@1", workflow.Key())

			id, wait, err := runtime.StartProcess(ctx, "approval", "alice", map[string]interface{}{"amount": testCase.amount})
			require.NoError(t, err)
			snapshot, err := wait(ctx, 5*time.Second)
			require.NoError(t, err)
			assert.EqualValues(t, testCase.amount, snapshot.Variables["echoed"])
			assert.Equal(t, "USD", snapshot.Variables["currency"])

			if testCase.approve {
				require.Equal(t, execution.StatusWaiting, snapshot.Status)
				tasks, err := runtime.PendingTasks(ctx)
				require.NoError(t, err)
				require.Len(t, tasks, 1)
				assert.Equal(t, id, tasks[0].ProcessID)
				require.NoError(t, runtime.CompleteTask(ctx, tasks[0].ID, "bob", map[string]interface{}{"approved": true}))
				snapshot, err = wait(ctx, 5*time.Second)
				require.NoError(t, err)
				assert.Equal(t, true, snapshot.Variables["approved"])
			}
			assert.Equal(t, execution.StatusCompleted, snapshot.Status)
			assert.Empty(t, runtime.Processes(ctx))
			require.NoError(t, runtime.Cleanup(ctx, id))
		})
	}
}

func TestService_Policy(t *testing.T) {
	runtime := newService(t, procflow.WithPolicy(&policy.Policy{Mode: policy.ModeAuto, BlockList: []string{"nop.*"}}))
	ctx := context.Background()
	_, err := runtime.DeployWorkflow(ctx, "approval")
	require.NoError(t, err)

	_, wait, err := runtime.StartProcess(ctx, "approval", "", map[string]interface{}{"amount": 1})
	require.NoError(t, err)
	snapshot, err := wait(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Error, "nop.echo")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PROCFLOW_SERVICE_NAME", "orders")
	config, err := procflow.LoadConfig(context.Background(), "embed:///testdata/config.yaml", &embedFS)
	require.NoError(t, err)

	assert.Equal(t, "exponential", config.Engine.Retry.Type)
	assert.Equal(t, "5ms", config.Engine.Retry.Delay)
	assert.Equal(t, float64(2), config.Engine.Retry.Multiplier, "unset fields keep defaults")
	assert.Equal(t, 16, config.Engine.InboxSize)
	assert.Equal(t, "embed:///testdata", config.Definitions.BaseURL)
	assert.Equal(t, "orders", config.Tracing.ServiceName)
	require.NotNil(t, config.Policy)
	assert.Equal(t, []string{"printer.*"}, config.Policy.BlockList)

	retry := config.RetryDefaults()
	assert.Equal(t, 5*time.Millisecond, retry.Delay)
	assert.Equal(t, 10*time.Second, retry.MaxDelay)

	srv, err := procflow.New(procflow.WithConfig(config), procflow.WithMetaFsOptions(&embedFS))
	require.NoError(t, err)
	runtime := srv.Runtime()
	require.NoError(t, runtime.Start(context.Background()))
	defer runtime.Shutdown(context.Background())
	workflow, err := runtime.LoadWorkflow(context.Background(), "approval.yaml")
	require.NoError(t, err)
	assert.Equal(t, "approval", workflow.ID)
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		description string
		mutate      func(c *procflow.Config)
		expect      []string
	}{
		{description: "defaults", mutate: func(c *procflow.Config) {}},
		{
			description: "bad values",
			mutate: func(c *procflow.Config) {
				c.Engine.Retry.Type = "random"
				c.Engine.Retry.Delay = "soon"
				c.Events.Vendor = "kafka"
				c.Store.Vendor = procflow.VendorFS
			},
			expect: []string{"engine.retry.type", "engine.retry.delay", "events.vendor", "store.path"},
		},
		{
			description: "policy mode",
			mutate: func(c *procflow.Config) {
				c.Policy = &policy.Config{Mode: "sometimes"}
			},
			expect: []string{"unknown mode"},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			config := procflow.DefaultConfig()
			testCase.mutate(config)
			err := config.Validate()
			if len(testCase.expect) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, expect := range testCase.expect {
				assert.Contains(t, err.Error(), expect)
			}
			_, err = procflow.New(procflow.WithConfig(config))
			assert.Error(t, err)
		})
	}
}

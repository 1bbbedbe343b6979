package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	service, err := New(t.TempDir(), afs.New())
	require.NoError(t, err)

	require.NoError(t, service.Save(ctx, &execution.Snapshot{ID: "p1", WorkflowID: "order", Status: execution.StatusRunning, Variables: map[string]interface{}{"amount": 10.0}}))
	require.NoError(t, service.Save(ctx, &execution.Snapshot{ID: "p2", WorkflowID: "order", Status: execution.StatusCompleted}))
	assert.ErrorIs(t, service.Save(ctx, &execution.Snapshot{}), dao.ErrInvalidID)

	loaded, err := service.Load(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "order", loaded.WorkflowID)
	assert.Equal(t, 10.0, loaded.Variables["amount"])
	_, err = service.Load(ctx, "nope")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	running, err := service.List(ctx, dao.NewParameter("Status", string(execution.StatusRunning)))
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "p1", running[0].ID)

	require.NoError(t, service.Delete(ctx, "p2"))
	all, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

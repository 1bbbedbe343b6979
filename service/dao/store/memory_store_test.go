package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/dao/criteria"
)

type record struct {
	ID     string
	Status string
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[string, record](func(r *record) string { return r.ID }).
		WithMatcher(func(r *record, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(r.Status, parameters)
		})

	require.NoError(t, store.Save(ctx, &record{ID: "1", Status: "running"}))
	require.NoError(t, store.Save(ctx, &record{ID: "2", Status: "completed"}))
	assert.ErrorIs(t, store.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, store.Save(ctx, &record{}), dao.ErrInvalidID)

	loaded, err := store.Load(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "running", loaded.Status)
	_, err = store.Load(ctx, "3")
	assert.ErrorIs(t, err, dao.ErrNotFound)

	running, err := store.List(ctx, dao.NewParameter("Status", "running"))
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "1", running[0].ID)
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "1"))
	assert.ErrorIs(t, store.Delete(ctx, "1"), dao.ErrNotFound)
}

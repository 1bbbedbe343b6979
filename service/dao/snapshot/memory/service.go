package memory

import (
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/dao/criteria"
	"github.com/viant/procflow/service/dao/store"
)

// New creates an in-memory snapshot store filtered by Status parameters.
func New() dao.Service[string, execution.Snapshot] {
	return store.NewMemoryStore[string, execution.Snapshot](func(s *execution.Snapshot) string {
		return s.ID
	}).WithMatcher(func(s *execution.Snapshot, parameters []*dao.Parameter) bool {
		return criteria.FilterByStatus(string(s.Status), parameters)
	})
}

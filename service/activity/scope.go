package activity

import "github.com/viant/procflow/model/graph"

// Scope is the process view an activity executes against.
type Scope struct {
	ProcessID string
	TokenID   string
	// Variables is a snapshot; the executor never mutates it.
	Variables map[string]interface{}
	// Outgoing lists the activity's transitions in declared order.
	Outgoing []*graph.Transition
}

func (s *Scope) env(extra map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{}, len(s.Variables)+len(extra))
	for k, v := range s.Variables {
		ret[k] = v
	}
	for k, v := range extra {
		ret[k] = v
	}
	return ret
}

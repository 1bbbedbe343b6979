package execution

import (
	"encoding/json"
	"sync"
)

// Variables is the mutable variable map of a process instance.
type Variables struct {
	mu    sync.RWMutex
	state map[string]interface{}
}

// NewVariables creates variables seeded with a deep copy of initial.
func NewVariables(initial map[string]interface{}) *Variables {
	ret := &Variables{state: make(map[string]interface{}, len(initial))}
	ret.Merge(initial)
	return ret
}

// Get returns a variable value.
func (v *Variables) Get(key string) (interface{}, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.state[key]
	return value, ok
}

// Set adds or updates a variable
func (v *Variables) Set(key string, value interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state[key] = CloneValue(value)
}

// Merge copies values over existing bindings.
func (v *Variables) Merge(values map[string]interface{}) {
	if len(values) == 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, value := range values {
		v.state[key] = CloneValue(value)
	}
}

// Snapshot returns a deep copy of all variables.
func (v *Variables) Snapshot() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return CloneValue(v.state).(map[string]interface{})
}

func (v *Variables) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Snapshot())
}

func (v *Variables) UnmarshalJSON(data []byte) error {
	state := map[string]interface{}{}
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	v.mu.Lock()
	v.state = state
	v.mu.Unlock()
	return nil
}

// CloneValue deep copies maps and slices of generic values; other values are
// returned as is.
func CloneValue(value interface{}) interface{} {
	switch actual := value.(type) {
	case map[string]interface{}:
		clone := make(map[string]interface{}, len(actual))
		for k, item := range actual {
			clone[k] = CloneValue(item)
		}
		return clone
	case []interface{}:
		clone := make([]interface{}, len(actual))
		for i, item := range actual {
			clone[i] = CloneValue(item)
		}
		return clone
	case []string:
		return append([]string(nil), actual...)
	}
	return value
}

package task

import (
	"time"
)

// Status of a human task.
type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
)

// Task is a unit of human work created by a user activity.
type Task struct {
	ID              string                 `json:"id"`
	ActivityID      string                 `json:"activityId"`
	ProcessID       string                 `json:"processId"`
	TokenID         string                 `json:"tokenId,omitempty"`
	Name            string                 `json:"name,omitempty"`
	Assignee        string                 `json:"assignee,omitempty"`
	CandidateGroups []string               `json:"candidateGroups,omitempty"`
	Input           map[string]interface{} `json:"input,omitempty"`
	Status          Status                 `json:"status"`
	CompletedBy     string                 `json:"completedBy,omitempty"`
	Outputs         map[string]interface{} `json:"outputs,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
}

// Clone returns a copy safe to hand out to callers.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	clone.CandidateGroups = append([]string(nil), t.CandidateGroups...)
	clone.Input = copyMap(t.Input)
	clone.Outputs = copyMap(t.Outputs)
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	ret := make(map[string]interface{}, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}

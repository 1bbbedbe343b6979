package execution

import "time"

// Snapshot is the persisted/exchanged view of a process instance.
type Snapshot struct {
	ID                  string                 `json:"id"`
	WorkflowID          string                 `json:"workflowId"`
	WorkflowVersion     string                 `json:"workflowVersion,omitempty"`
	Initiator           string                 `json:"initiator,omitempty"`
	Status              Status                 `json:"status"`
	Variables           map[string]interface{} `json:"variables"`
	CurrentActivities   []string               `json:"currentActivities"`
	CompletedActivities []string               `json:"completedActivities"`
	Tokens              []*Token               `json:"tokens,omitempty"`
	History             History                `json:"history"`
	StartedAt           time.Time              `json:"startedAt"`
	EndedAt             *time.Time             `json:"endedAt,omitempty"`
	Reason              string                 `json:"reason,omitempty"`
	Error               string                 `json:"error,omitempty"`
	CompensationErrors  []string               `json:"compensationErrors,omitempty"`
}

// IsTerminal reports whether the snapshot status is final.
func (s *Snapshot) IsTerminal() bool {
	return s.Status.IsTerminal()
}

package execution

import "time"

// EntryType classifies history entries.
type EntryType string

const (
	EntryStatus            EntryType = "status"
	EntryTokenCreated      EntryType = "token.created"
	EntryTokenMoved        EntryType = "token.moved"
	EntryTokenRemoved      EntryType = "token.removed"
	EntryActivityCompleted EntryType = "activity.completed"
	EntryActivityFailed    EntryType = "activity.failed"
	EntryActivityRetry     EntryType = "activity.retry"
	EntryTaskCreated       EntryType = "task.created"
	EntryTaskCompleted     EntryType = "task.completed"
	EntryTimerScheduled    EntryType = "timer.scheduled"
	EntryTimerFired        EntryType = "timer.fired"
	EntryJoinArrived       EntryType = "join.arrived"
	EntryCompensation      EntryType = "compensation"
)

// HistoryEntry is an append-only record of an instance state change.
type HistoryEntry struct {
	Time       time.Time `json:"time"`
	Type       EntryType `json:"type"`
	ActivityID string    `json:"activityId,omitempty"`
	TokenID    string    `json:"tokenId,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Status     Status    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// History is an ordered list of entries.
type History []*HistoryEntry

// Filter returns entries of the given types.
func (h History) Filter(types ...EntryType) History {
	var result History
	for _, entry := range h {
		for _, candidate := range types {
			if entry.Type == candidate {
				result = append(result, entry)
				break
			}
		}
	}
	return result
}

// Activities returns the activity ids of the entries in order.
func (h History) Activities() []string {
	result := make([]string, 0, len(h))
	for _, entry := range h {
		result = append(result, entry.ActivityID)
	}
	return result
}

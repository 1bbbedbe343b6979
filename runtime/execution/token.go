package execution

import "time"

// Token is an independent thread of control positioned at one activity.
type Token struct {
	ID         string `json:"id"`
	ActivityID string `json:"activityId"`
	TaskID     string `json:"taskId,omitempty"`
	TimerID    string `json:"timerId,omitempty"`
	Joining    bool   `json:"joining,omitempty"`
	// Merged is set once the token passed the join at ActivityID; a retry
	// executes the join again without waiting for arrivals.
	Merged    bool      `json:"merged,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Parked reports whether the token awaits an external signal.
func (t *Token) Parked() bool {
	return t.TaskID != "" || t.TimerID != ""
}

// Runnable reports whether the token can be executed now.
func (t *Token) Runnable() bool {
	return !t.Parked() && !t.Joining
}

func (t *Token) clone() *Token {
	clone := *t
	return &clone
}

package execution

// JoinPoint is a rendez-vous for tokens converging on a join activity. It
// tracks how many tokens are expected and which have already arrived.
type JoinPoint struct {
	ActivityID string   `json:"activityId"`
	Expected   int      `json:"expected"`
	Arrived    []string `json:"arrived,omitempty"`
}

// Arrive registers a token and returns true once the expected count has been
// reached. A token arriving twice is counted once.
func (j *JoinPoint) Arrive(tokenID string) bool {
	for _, candidate := range j.Arrived {
		if candidate == tokenID {
			return j.Complete()
		}
	}
	j.Arrived = append(j.Arrived, tokenID)
	return j.Complete()
}

// Complete reports whether all expected tokens arrived.
func (j *JoinPoint) Complete() bool {
	return j.Expected > 0 && len(j.Arrived) >= j.Expected
}

// Reset clears arrivals so that the join can be re-entered by a loop.
func (j *JoinPoint) Reset() {
	j.Arrived = nil
}

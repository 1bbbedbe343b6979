package execution

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/viant/procflow/internal/clock"
	"github.com/viant/procflow/internal/idgen"
	"github.com/viant/procflow/model"
)

// Process represents a running workflow instance. All mutating methods are
// safe for concurrent use; the engine still funnels mutations through a
// single goroutine per instance so that multi-step updates stay consistent.
type Process struct {
	ID                 string                `json:"id"`
	WorkflowID         string                `json:"workflowId"`
	WorkflowVersion    string                `json:"workflowVersion,omitempty"`
	Initiator          string                `json:"initiator,omitempty"`
	Status             Status                `json:"status"`
	Variables          *Variables            `json:"variables"`
	Tokens             []*Token              `json:"tokens"`
	Completed          []string              `json:"completedActivities"`
	History            History               `json:"history"`
	Retries            map[string]int        `json:"retries,omitempty"`
	Attempts           map[string]int        `json:"attempts,omitempty"`
	Joins              map[string]*JoinPoint `json:"joins,omitempty"`
	StartedAt          time.Time             `json:"startedAt"`
	EndedAt            *time.Time            `json:"endedAt,omitempty"`
	Reason             string                `json:"reason,omitempty"`
	Error              string                `json:"error,omitempty"`
	CompensationErrors []string              `json:"compensationErrors,omitempty"`
	Workflow           *model.Workflow       `json:"-"`
	mu                 sync.RWMutex
}

// NewProcess creates an instance of workflow with defaults overlaid by
// inputs. The retry budget is copied from the definition.
func NewProcess(id string, workflow *model.Workflow, initiator string, inputs map[string]interface{}) *Process {
	variables := NewVariables(workflow.Defaults())
	variables.Merge(inputs)
	return &Process{
		ID:              id,
		WorkflowID:      workflow.ID,
		WorkflowVersion: workflow.Version,
		Initiator:       initiator,
		Workflow:        workflow,
		Variables:       variables,
		Retries:         workflow.RetryBudget(),
		Attempts:        make(map[string]int),
		Joins:           make(map[string]*JoinPoint),
		StartedAt:       clock.Now(),
	}
}

func (p *Process) record(entry *HistoryEntry) {
	entry.Time = clock.Now()
	p.History = append(p.History, entry)
}

// Record appends a history entry.
func (p *Process) Record(entry *HistoryEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(entry)
}

// GetStatus returns current status.
func (p *Process) GetStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// SetStatus changes status, records history and stamps EndedAt on terminal
// states. Terminal states are final; the call returns false when ignored.
func (p *Process) SetStatus(status Status, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status.IsTerminal() || p.Status == status {
		return false
	}
	p.record(&HistoryEntry{Type: EntryStatus, From: string(p.Status), To: string(status), Status: status, Message: message})
	p.Status = status
	if status.IsTerminal() {
		now := clock.Now()
		p.EndedAt = &now
	}
	return true
}

// Fail sets the failure error; status is changed separately.
func (p *Process) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.Error = err.Error()
	}
}

// Terminate force-sets the terminated status with a reason.
func (p *Process) Terminate(reason string) bool {
	p.mu.Lock()
	if p.Status.IsTerminal() {
		p.mu.Unlock()
		return false
	}
	p.Reason = reason
	p.mu.Unlock()
	return p.SetStatus(StatusTerminated, reason)
}

// AddToken creates a token positioned at activityID.
func (p *Process) AddToken(activityID string) *Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := &Token{ID: idgen.New(), ActivityID: activityID, CreatedAt: clock.Now()}
	p.Tokens = append(p.Tokens, token)
	p.record(&HistoryEntry{Type: EntryTokenCreated, ActivityID: activityID, TokenID: token.ID})
	return token
}

// MoveToken is the only mutation path for a token position.
func (p *Process) MoveToken(from, to, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := p.token(tokenID)
	if token == nil {
		return fmt.Errorf("token %s not found in process %s", tokenID, p.ID)
	}
	if token.ActivityID != from {
		return fmt.Errorf("token %s is at %s, not %s", tokenID, token.ActivityID, from)
	}
	token.ActivityID = to
	token.TaskID = ""
	token.TimerID = ""
	token.Joining = false
	token.Merged = false
	p.record(&HistoryEntry{Type: EntryTokenMoved, TokenID: tokenID, From: from, To: to, ActivityID: to})
	return nil
}

// RemoveToken removes a token.
func (p *Process) RemoveToken(tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeToken(tokenID, "")
}

func (p *Process) removeToken(tokenID, message string) error {
	for i, token := range p.Tokens {
		if token.ID == tokenID {
			p.Tokens = append(p.Tokens[:i], p.Tokens[i+1:]...)
			p.record(&HistoryEntry{Type: EntryTokenRemoved, TokenID: tokenID, ActivityID: token.ActivityID, Message: message})
			return nil
		}
	}
	return fmt.Errorf("token %s not found in process %s", tokenID, p.ID)
}

// ClearTokens removes every token, used when the instance reaches a
// terminal state.
func (p *Process) ClearTokens(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.Tokens) > 0 {
		_ = p.removeToken(p.Tokens[0].ID, message)
	}
}

func (p *Process) token(tokenID string) *Token {
	for _, token := range p.Tokens {
		if token.ID == tokenID {
			return token
		}
	}
	return nil
}

// Token returns a copy of the token or nil.
func (p *Process) Token(tokenID string) *Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if token := p.token(tokenID); token != nil {
		return token.clone()
	}
	return nil
}

// ActiveTokens returns copies of all tokens.
func (p *Process) ActiveTokens() []*Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]*Token, 0, len(p.Tokens))
	for _, token := range p.Tokens {
		result = append(result, token.clone())
	}
	return result
}

// CurrentActivities returns distinct, sorted activity ids referenced by
// tokens.
func (p *Process) CurrentActivities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentActivities()
}

func (p *Process) currentActivities() []string {
	unique := map[string]bool{}
	result := make([]string, 0, len(p.Tokens))
	for _, token := range p.Tokens {
		if !unique[token.ActivityID] {
			unique[token.ActivityID] = true
			result = append(result, token.ActivityID)
		}
	}
	sort.Strings(result)
	return result
}

// Park marks a token as waiting on a task or a timer.
func (p *Process) Park(tokenID, taskID, timerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := p.token(tokenID)
	if token == nil {
		return fmt.Errorf("token %s not found in process %s", tokenID, p.ID)
	}
	token.TaskID, token.TimerID = taskID, timerID
	entryType, message := EntryTaskCreated, taskID
	if timerID != "" {
		entryType, message = EntryTimerScheduled, timerID
	}
	p.record(&HistoryEntry{Type: entryType, TokenID: tokenID, ActivityID: token.ActivityID, Message: message})
	return nil
}

// TokenByTask returns a copy of the token parked on taskID.
func (p *Process) TokenByTask(taskID string) *Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, token := range p.Tokens {
		if token.TaskID == taskID {
			return token.clone()
		}
	}
	return nil
}

// TokenByTimer returns a copy of the token parked on a timer at activityID.
func (p *Process) TokenByTimer(activityID string) *Token {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, token := range p.Tokens {
		if token.ActivityID == activityID && token.TimerID != "" {
			return token.clone()
		}
	}
	return nil
}

// Unpark clears the waiting marker and records the resume cause.
func (p *Process) Unpark(tokenID string, entryType EntryType, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	token := p.token(tokenID)
	if token == nil {
		return fmt.Errorf("token %s not found in process %s", tokenID, p.ID)
	}
	token.TaskID, token.TimerID = "", ""
	p.record(&HistoryEntry{Type: entryType, TokenID: tokenID, ActivityID: token.ActivityID, Message: message})
	return nil
}

// Arrive registers a token at a join activity expecting the given number of
// tokens. It returns true once the join is complete.
func (p *Process) Arrive(activityID, tokenID string, expected int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	join, ok := p.Joins[activityID]
	if !ok {
		join = &JoinPoint{ActivityID: activityID, Expected: expected}
		p.Joins[activityID] = join
	}
	if expected > 0 {
		join.Expected = expected
	}
	if token := p.token(tokenID); token != nil {
		token.Joining = true
	}
	complete := join.Arrive(tokenID)
	p.record(&HistoryEntry{Type: EntryJoinArrived, TokenID: tokenID, ActivityID: activityID,
		Message: fmt.Sprintf("%d/%d", len(join.Arrived), join.Expected)})
	return complete
}

// JoiningTokens returns ids of tokens waiting at a join activity.
func (p *Process) JoiningTokens(activityID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var result []string
	for _, token := range p.Tokens {
		if token.ActivityID == activityID && token.Joining {
			result = append(result, token.ID)
		}
	}
	return result
}

// Merge collapses tokens waiting at a join into the kept token, which
// becomes runnable again, and resets the join point.
func (p *Process) Merge(activityID, keepTokenID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var remove []string
	for _, token := range p.Tokens {
		if token.ActivityID != activityID || !token.Joining {
			continue
		}
		if token.ID == keepTokenID {
			token.Joining = false
			token.Merged = true
			continue
		}
		remove = append(remove, token.ID)
	}
	for _, id := range remove {
		_ = p.removeToken(id, "merged into "+keepTokenID)
	}
	if join, ok := p.Joins[activityID]; ok {
		join.Reset()
	}
}

// CompleteActivity records id once in completion order. It returns false
// when the activity was already recorded.
func (p *Process) CompleteActivity(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, candidate := range p.Completed {
		if candidate == id {
			return false
		}
	}
	p.Completed = append(p.Completed, id)
	p.record(&HistoryEntry{Type: EntryActivityCompleted, ActivityID: id})
	return true
}

// CompletedActivities returns completed activity ids in completion order.
func (p *Process) CompletedActivities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.Completed...)
}

// ConsumeRetry decrements the instance-scoped retry budget of an activity.
// It returns the remaining budget and false when nothing was left.
func (p *Process) ConsumeRetry(activityID string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.Retries[activityID]
	if remaining <= 0 {
		return 0, false
	}
	remaining--
	p.Retries[activityID] = remaining
	return remaining, true
}

// RetryBudget returns the remaining retries of an activity.
func (p *Process) RetryBudget(activityID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Retries[activityID]
}

// Attempt increments and returns the execution attempt counter.
func (p *Process) Attempt(activityID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Attempts[activityID]++
	return p.Attempts[activityID]
}

// AttemptCount returns how many times an activity was executed.
func (p *Process) AttemptCount(activityID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Attempts[activityID]
}

// ResetAttempts clears the attempt counter after a successful execution and
// restores the retry budget from the definition, so an activity revisited
// in a loop starts with its full budget.
func (p *Process) ResetAttempts(activityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Attempts, activityID)
	if p.Workflow == nil {
		return
	}
	if activity, ok := p.Workflow.Activity(activityID); ok && activity.Retries > 0 {
		if p.Retries == nil {
			p.Retries = make(map[string]int)
		}
		p.Retries[activityID] = activity.Retries
	}
}

// SetCompensationErrors stores the compensation report.
func (p *Process) SetCompensationErrors(errs []error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompensationErrors = p.CompensationErrors[:0]
	for _, err := range errs {
		p.CompensationErrors = append(p.CompensationErrors, err.Error())
	}
}

// Snapshot returns a deep copy of the externally visible state.
func (p *Process) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ret := &Snapshot{
		ID:                  p.ID,
		WorkflowID:          p.WorkflowID,
		WorkflowVersion:     p.WorkflowVersion,
		Initiator:           p.Initiator,
		Status:              p.Status,
		Variables:           p.Variables.Snapshot(),
		CurrentActivities:   p.currentActivities(),
		CompletedActivities: append([]string{}, p.Completed...),
		StartedAt:           p.StartedAt,
		Reason:              p.Reason,
		Error:               p.Error,
		CompensationErrors:  append([]string(nil), p.CompensationErrors...),
	}
	for _, token := range p.Tokens {
		ret.Tokens = append(ret.Tokens, token.clone())
	}
	for _, entry := range p.History {
		clone := *entry
		ret.History = append(ret.History, &clone)
	}
	if p.EndedAt != nil {
		ended := *p.EndedAt
		ret.EndedAt = &ended
	}
	return ret
}

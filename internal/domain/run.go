package domain

import "time"

// Task is the payload handed to a handler. Its expected shape depends on
// the agent type and is not enforced by the dispatcher.
type Task map[string]any

// String returns the string value stored under key, or "".
func (t Task) String(key string) string {
	if v, ok := t[key].(string); ok {
		return v
	}
	return ""
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	RunID      string        `json:"runId"`
	AgentID    string        `json:"agentId"`
	AgentType  string        `json:"type"`
	Output     any           `json:"result"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"duration"`
}

// RunRecord is the journal entry written for every admitted run.
type RunRecord struct {
	RunID      string    `json:"runId"`
	AgentID    string    `json:"agentId"`
	AgentName  string    `json:"agentName"`
	AgentType  string    `json:"type"`
	Status     Status    `json:"status"`
	Attempts   int       `json:"attempts"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
}

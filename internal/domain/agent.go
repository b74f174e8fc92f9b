package domain

import (
	"maps"
	"time"
)

// Status is the lifecycle state of an agent.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Agent is a named, typed, reusable unit of schedulable work.
type Agent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config,omitempty"`
	Status    Status         `json:"status"`
	LastRunAt *time.Time     `json:"lastRunAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Runs      int            `json:"runs"`
	LastError string         `json:"lastError,omitempty"`
}

// Clone returns a deep-enough copy of the agent that callers may keep
// without racing later status writes.
func (a Agent) Clone() Agent {
	out := a
	out.Config = maps.Clone(a.Config)
	if a.LastRunAt != nil {
		t := *a.LastRunAt
		out.LastRunAt = &t
	}
	return out
}

// Summary returns the list projection of the agent.
func (a Agent) Summary() Summary {
	return Summary{ID: a.ID, Name: a.Name, Type: a.Type, Status: a.Status}
}

// Report returns the status projection of the agent.
func (a Agent) Report() StatusReport {
	r := StatusReport{
		ID:        a.ID,
		Name:      a.Name,
		Type:      a.Type,
		Status:    a.Status,
		Runs:      a.Runs,
		LastError: a.LastError,
	}
	if a.LastRunAt != nil {
		t := *a.LastRunAt
		r.LastRunAt = &t
	}
	return r
}

// Summary is the row shown when listing agents.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status Status `json:"status"`
}

// StatusReport is the read-only status view of one agent.
type StatusReport struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Status    Status     `json:"status"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	Runs      int        `json:"runs"`
	LastError string     `json:"lastError,omitempty"`
}

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Status tests ---

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusRunning, StatusCompleted, StatusError} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("paused").Valid())
	assert.False(t, Status("").Valid())
}

// --- Agent tests ---

func TestAgentCloneIsolatesConfigAndTime(t *testing.T) {
	now := time.Now()
	a := Agent{
		ID:        "a1",
		Config:    map[string]any{"url": "https://example.com"},
		LastRunAt: &now,
	}

	c := a.Clone()
	c.Config["url"] = "changed"
	*c.LastRunAt = now.Add(time.Hour)

	assert.Equal(t, "https://example.com", a.Config["url"])
	assert.Equal(t, now, *a.LastRunAt)
}

func TestAgentProjections(t *testing.T) {
	now := time.Now()
	a := Agent{ID: "a1", Name: "Scraper A", Type: "web-scraper", Status: StatusCompleted, LastRunAt: &now, Runs: 2}

	assert.Equal(t, Summary{ID: "a1", Name: "Scraper A", Type: "web-scraper", Status: StatusCompleted}, a.Summary())

	r := a.Report()
	assert.Equal(t, StatusCompleted, r.Status)
	require.NotNil(t, r.LastRunAt)
	assert.Equal(t, now, *r.LastRunAt)
	assert.Equal(t, 2, r.Runs)
}

func TestStatusReportJSONOmitsMissingLastRun(t *testing.T) {
	data, err := json.Marshal(Agent{ID: "a1", Status: StatusIdle}.Report())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastRunAt")
	assert.Contains(t, string(data), `"status":"idle"`)
}

// --- Task tests ---

func TestTaskString(t *testing.T) {
	task := Task{"url": "https://example.com", "n": 3}
	assert.Equal(t, "https://example.com", task.String("url"))
	assert.Equal(t, "", task.String("n"))
	assert.Equal(t, "", task.String("missing"))
}

// --- Error tests ---

func TestOpErrorIsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &OpError{Op: "run", Kind: ErrHandler, AgentID: "a1", AgentType: "api-caller", Attempts: 3, Err: cause}

	assert.ErrorIs(t, err, ErrHandler)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "run: handler failed (agent a1, type api-caller) after 3 attempts: connection refused", err.Error())
}

func TestOpErrorWrappedStillMatches(t *testing.T) {
	err := fmt.Errorf("outer: %w", &OpError{Op: "run", Kind: ErrAtCapacity, AgentType: "generic"})

	var op *OpError
	require.ErrorAs(t, err, &op)
	assert.Equal(t, "generic", op.AgentType)
	assert.ErrorIs(t, err, ErrAtCapacity)
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", &OpError{Op: "get", Kind: ErrNotFound}, CodeNotFound},
		{"invalid type", &OpError{Op: "register", Kind: ErrInvalidType}, CodeInvalidType},
		{"disabled at register", &OpError{Op: "register", Kind: ErrInvalidType, Err: ErrAgentDisabled}, CodeInvalidType},
		{"disabled at run", &OpError{Op: "run", Kind: ErrAgentDisabled}, CodeAgentDisabled},
		{"capacity", &OpError{Op: "run", Kind: ErrAtCapacity}, CodeAtCapacity},
		{"timeout", &OpError{Op: "run", Kind: ErrTimeout}, CodeTimeout},
		{"handler", &OpError{Op: "run", Kind: ErrHandler, Err: errors.New("boom")}, CodeHandlerError},
		{"bare sentinel", ErrNotFound, CodeNotFound},
		{"unknown", errors.New("other"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

// --- Redaction tests ---

func TestRedactConfig(t *testing.T) {
	cfg := map[string]any{
		"url":       "https://example.com",
		"latencyMs": 5,
		"Password":  "hunter2",
		"headers":   map[string]string{"Authorization": "Bearer abc", "Accept": "text/html"},
		"oauth2": map[string]any{
			"tokenUrl":     "https://auth.example.com/token",
			"clientSecret": "s3cr3t",
			"scopes":       []any{"read"},
		},
	}

	got := RedactConfig(cfg)
	assert.Equal(t, map[string]any{
		"url":       "https://example.com",
		"latencyMs": 5,
		"Password":  RedactedValue,
		"headers":   map[string]any{"Authorization": RedactedValue, "Accept": RedactedValue},
		"oauth2": map[string]any{
			"tokenUrl":     "https://auth.example.com/token",
			"clientSecret": RedactedValue,
			"scopes":       []any{"read"},
		},
	}, got)
	assert.Equal(t, "s3cr3t", cfg["oauth2"].(map[string]any)["clientSecret"], "input is not modified")
	assert.Nil(t, RedactConfig(nil))
}

func TestAgentRedacted(t *testing.T) {
	a := Agent{ID: "a1", Config: map[string]any{"token": "t", "mode": "fast"}}
	r := a.Redacted()
	assert.Equal(t, map[string]any{"token": RedactedValue, "mode": "fast"}, r.Config)
	assert.Equal(t, "t", a.Config["token"])
}

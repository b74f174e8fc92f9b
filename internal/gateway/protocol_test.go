package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	frame, err := NewRequest("req-1", "agents.status", map[string]string{"agentId": "a-1"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "req-1", frame.ID)
	assert.Equal(t, "agents.status", frame.Method)
	assert.JSONEq(t, `{"agentId":"a-1"}`, string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", CreateAgentResponse{AgentID: "a-1"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeResponse, frame.Type)
	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)
	assert.JSONEq(t, `{"agentId":"a-1"}`, string(frame.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-1", ErrorShape{
		Code:       "at_capacity",
		Message:    "busy",
		Retryable:  true,
		RetryAfter: 1000,
	})

	data, err := json.Marshal(frame)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "res", raw["type"])
	assert.Equal(t, false, raw["ok"])
	assert.NotContains(t, raw, "payload")

	shape := raw["error"].(map[string]any)
	assert.Equal(t, "at_capacity", shape["code"])
	assert.Equal(t, true, shape["retryable"])
	assert.Equal(t, float64(1000), shape["retryAfterMs"])
}

func TestErrorShape_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: "not_found", Message: "gone"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"not_found","message":"gone"}`, string(data))
}

func TestNewEvent(t *testing.T) {
	at := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	frame, err := NewEvent(EventAgentStatus, AgentStatusEvent{
		Hook:    "run_finished",
		AgentID: "a-1",
		At:      at,
		Data:    map[string]any{"status": "completed"},
	}, 7)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, "agent.status", frame.Event)
	assert.Equal(t, int64(7), frame.Seq)
	assert.JSONEq(t,
		`{"hook":"run_finished","agentId":"a-1","at":"2026-04-02T09:30:00Z","data":{"status":"completed"}}`,
		string(frame.Payload))
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "cli", Version: "dev", Platform: "linux"},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestRunAgentRequest_Task(t *testing.T) {
	var req RunAgentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"task":{"url":"https://example.com","depth":2}}`), &req))
	assert.Empty(t, req.AgentID)
	assert.Equal(t, "https://example.com", req.Task["url"])
	assert.Equal(t, float64(2), req.Task["depth"])
}

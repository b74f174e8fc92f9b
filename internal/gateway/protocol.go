package gateway

import (
	"encoding/json"
	"time"
)

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Server-pushed event names.
const (
	EventConnectChallenge = "connect.challenge"
	EventAgentStatus      = "agent.status"
)

// Protocol limits advertised in HelloOK.
const (
	MaxPayloadBytes  = 4 * 1024 * 1024
	MaxBufferedBytes = 16 * 1024 * 1024
	TickIntervalMs   = 30000
)

// Frame is the envelope of every WebSocket message; Type says which of
// the field groups below is populated.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the standard error format in response frames.
type ErrorShape struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int    `json:"retryAfterMs,omitempty"`
}

// ConnectParams open a WebSocket session. Unknown fields are ignored.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting client in logs.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// ConnectAuth carries credentials in the connect request.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the server's response payload after successful authentication.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway server.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Host    string `json:"host,omitempty"`
	ConnID  string `json:"connId"`
}

// Features advertises available RPC methods and events.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits to the client.
type ServerPolicy struct {
	MaxPayload       int `json:"maxPayload"`
	MaxBufferedBytes int `json:"maxBufferedBytes"`
	TickIntervalMs   int `json:"tickIntervalMs"`
}

// AgentStatusEvent is the payload of an agent.status event. It mirrors one
// lifecycle hook.
type AgentStatusEvent struct {
	Hook    string         `json:"hook"`
	AgentID string         `json:"agentId"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// CreateAgentRequest is the body of POST /api/v1/agents and the params of
// agents.create.
type CreateAgentRequest struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// CreateAgentResponse carries the new agent's id.
type CreateAgentResponse struct {
	AgentID string `json:"agentId"`
}

// RunAgentRequest is the body of POST /api/v1/agents/{id}/run. Over
// WebSocket it also carries the agent id.
type RunAgentRequest struct {
	AgentID string         `json:"agentId,omitempty"`
	Task    map[string]any `json:"task"`
}

func rawJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	return json.RawMessage(b), err
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := rawJSON(params)
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, err
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := rawJSON(payload)
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, err
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := rawJSON(payload)
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, err
}

// ProtocolVersion is the only WebSocket protocol this server speaks.
const ProtocolVersion = 1

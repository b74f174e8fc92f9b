package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/soyeahso/agentos/internal/domain"
)

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the authenticated RPC handler populates all fields.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Agents   int    `json:"agents,omitempty"`
	InFlight int    `json:"inFlight,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

// capacityRetryAfter is the hint sent with at_capacity failures.
const capacityRetryAfter = 1 // seconds

// handleHealth returns the server health status. Only status is exposed
// publicly; detailed info is available via the authenticated RPC health method.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, ErrorShape{
		Code:    domain.CodeNotFound,
		Message: "no route for " + r.Method + " " + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON envelope of every REST failure.
type errorBody struct {
	Error ErrorShape `json:"error"`
}

func writeError(w http.ResponseWriter, status int, shape ErrorShape) {
	writeJSON(w, status, errorBody{Error: shape})
}

// writeOpError maps a registry or dispatcher error to its HTTP status.
func writeOpError(w http.ResponseWriter, err error) {
	shape := errorShapeOf(err)
	if shape.Code == domain.CodeAtCapacity {
		w.Header().Set("Retry-After", strconv.Itoa(capacityRetryAfter))
	}
	writeError(w, httpStatusOf(shape.Code), shape)
}

func httpStatusOf(code string) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidType:
		return http.StatusBadRequest
	case domain.CodeAgentDisabled:
		return http.StatusConflict
	case domain.CodeAtCapacity:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// errorShapeOf builds the wire error for err. Attempts are reported when
// the dispatcher ran the handler at least once.
func errorShapeOf(err error) ErrorShape {
	shape := ErrorShape{
		Code:    domain.Code(err),
		Message: err.Error(),
	}
	var op *domain.OpError
	if errors.As(err, &op) && op.Attempts > 0 {
		shape.Details = map[string]any{"attempts": op.Attempts}
	}
	if shape.Code == domain.CodeAtCapacity {
		shape.Retryable = true
		shape.RetryAfter = capacityRetryAfter * 1000
	}
	return shape
}

// RequestHandler processes an incoming RPC request frame from a client.
type RequestHandler func(ctx *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.send(ErrorShape{Code: code, Message: message})
}

// RespondErr sends err mapped to its wire code.
func (rc *RequestContext) RespondErr(err error) {
	rc.send(errorShapeOf(err))
}

func (rc *RequestContext) send(shape ErrorShape) {
	if err := rc.Client.RespondError(rc.Frame.ID, shape); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send error response")
	}
}

// Params unmarshals the request params into the given target.
func (rc *RequestContext) Params(target any) error {
	if rc.Frame.Params == nil {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

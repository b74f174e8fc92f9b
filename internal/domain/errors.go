package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the registry and dispatcher wraps
// exactly one of these, so callers can branch with errors.Is.
var (
	ErrNotFound      = errors.New("agent not found")
	ErrInvalidType   = errors.New("invalid agent type")
	ErrAgentDisabled = errors.New("agent type disabled")
	ErrAtCapacity    = errors.New("agent type at capacity")
	ErrTimeout       = errors.New("handler timed out")
	ErrHandler       = errors.New("handler failed")
)

// OpError describes a failed registry or dispatcher operation.
type OpError struct {
	Op        string // "register", "get", "run", ...
	Kind      error  // one of the Err* kinds above
	AgentID   string
	AgentType string
	Attempts  int
	Err       error // underlying cause, may be nil
}

func (e *OpError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	switch {
	case e.AgentID != "" && e.AgentType != "":
		msg += fmt.Sprintf(" (agent %s, type %s)", e.AgentID, e.AgentType)
	case e.AgentID != "":
		msg += fmt.Sprintf(" (agent %s)", e.AgentID)
	case e.AgentType != "":
		msg += fmt.Sprintf(" (type %s)", e.AgentType)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wire codes for each error kind.
const (
	CodeNotFound      = "not_found"
	CodeInvalidType   = "invalid_type"
	CodeAgentDisabled = "agent_disabled"
	CodeAtCapacity    = "at_capacity"
	CodeTimeout       = "timeout"
	CodeHandlerError  = "handler_error"
	CodeInternal      = "internal"
)

// Code maps an error to its stable wire code. The kind recorded on an
// OpError wins over any kind found in its cause chain.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var op *OpError
	if errors.As(err, &op) {
		return kindCode(op.Kind)
	}
	return kindCode(err)
}

func kindCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidType):
		return CodeInvalidType
	case errors.Is(err, ErrAgentDisabled):
		return CodeAgentDisabled
	case errors.Is(err, ErrAtCapacity):
		return CodeAtCapacity
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrHandler):
		return CodeHandlerError
	default:
		return CodeInternal
	}
}

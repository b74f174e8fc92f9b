package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/status"
	"github.com/soyeahso/agentos/internal/store"
)

// TypesResponse is the body of GET /api/v1/types.
type TypesResponse struct {
	Types []status.TypeStatus `json:"types"`
}

// AgentsResponse is the body of GET /api/v1/agents.
type AgentsResponse struct {
	Agents []domain.Summary `json:"agents"`
}

// RunsResponse is the body of GET /api/v1/agents/{id}/runs.
type RunsResponse struct {
	Runs []domain.RunRecord `json:"runs"`
}

func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TypesResponse{Types: s.status.Types()})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Overview())
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AgentsResponse{Agents: s.status.Agents()})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req CreateAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, ErrorShape{Code: "invalid_request", Message: "name is required"})
		return
	}

	id, err := s.registry.Register(r.Context(), req.Name, req.Type, req.Config)
	if err != nil {
		writeOpError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/agents/"+id)
	writeJSON(w, http.StatusCreated, CreateAgentResponse{AgentID: id})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Redacted())
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	rep, err := s.status.StatusOf(r.PathValue("id"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRunAgent(w http.ResponseWriter, r *http.Request) {
	var req RunAgentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.dispatcher.Run(r.Context(), r.PathValue("id"), domain.Task(req.Task))
	if err != nil {
		s.log.Debug().
			Str("requestId", RequestID(r.Context())).
			Str("agentId", r.PathValue("id")).
			Str("code", domain.Code(err)).
			Msg("run request failed")
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := store.RunQuery{
		AgentID: r.PathValue("id"),
		Type:    r.URL.Query().Get("type"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrorShape{Code: "invalid_request", Message: "limit must be a non-negative integer"})
			return
		}
		q.Limit = n
	}

	runs, err := s.history.List(r.Context(), q)
	if err != nil {
		s.log.Error().Err(err).Str("agentId", q.AgentID).Msg("listing run history failed")
		writeError(w, http.StatusInternalServerError, ErrorShape{Code: domain.CodeInternal, Message: "listing run history failed"})
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
// On failure it writes a 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxPayloadBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, ErrorShape{Code: "invalid_request", Message: "invalid JSON body: " + err.Error()})
	return false
}

package gateway

import (
	"net/http"
	"strings"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/store"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.Handle("GET /api/v1/status", s.authMiddleware(s.handleOverview))
	mux.Handle("GET /api/v1/types", s.authMiddleware(s.handleListTypes))
	mux.Handle("GET /api/v1/agents", s.authMiddleware(s.handleListAgents))
	mux.Handle("POST /api/v1/agents", s.authMiddleware(s.handleCreateAgent))
	mux.Handle("GET /api/v1/agents/{id}", s.authMiddleware(s.handleGetAgent))
	mux.Handle("GET /api/v1/agents/{id}/status", s.authMiddleware(s.handleAgentStatus))
	mux.Handle("POST /api/v1/agents/{id}/run", s.authMiddleware(s.handleRunAgent))
	mux.Handle("GET /api/v1/agents/{id}/runs", s.authMiddleware(s.handleListRuns))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("status.overview", s.rpcOverview)
	s.Handle("types.list", s.rpcTypesList)
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("agents.create", s.rpcAgentsCreate)
	s.Handle("agents.run", s.rpcAgentsRun)
	s.Handle("agents.status", s.rpcAgentsStatus)
	s.Handle("agents.runs", s.rpcAgentsRuns)
	s.Handle("agents.subscribe", s.rpcAgentsSubscribe)
	s.Handle("agents.unsubscribe", s.rpcAgentsUnsubscribe)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	inflight := 0
	for _, n := range s.dispatcher.InFlightAll() {
		inflight += n
	}
	rc.Respond(HealthResponse{
		Status:   "ok",
		Version:  s.build.Version,
		Clients:  s.clients.Count(),
		Agents:   s.registry.Count(),
		InFlight: inflight,
		UptimeMs: s.uptime().Milliseconds(),
	})
}

func (s *Server) rpcOverview(rc *RequestContext) {
	rc.Respond(s.status.Overview())
}

func (s *Server) rpcTypesList(rc *RequestContext) {
	rc.Respond(TypesResponse{Types: s.status.Types()})
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	rc.Respond(AgentsResponse{Agents: s.status.Agents()})
}

func (s *Server) rpcAgentsCreate(rc *RequestContext) {
	var p CreateAgentRequest
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Name) == "" {
		rc.RespondError("invalid_params", "name is required")
		return
	}

	id, err := s.registry.Register(rc.Client.Context(), p.Name, p.Type, p.Config)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(CreateAgentResponse{AgentID: id})
}

type agentIDParams struct {
	AgentID string `json:"agentId"`
	Type    string `json:"type,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (s *Server) rpcAgentsStatus(rc *RequestContext) {
	var p agentIDParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.AgentID == "" {
		rc.RespondError("invalid_params", "agentId is required")
		return
	}

	rep, err := s.status.StatusOf(p.AgentID)
	if err != nil {
		rc.RespondErr(err)
		return
	}
	rc.Respond(rep)
}

// rpcAgentsRun runs the agent off the read loop so the connection keeps
// serving other requests. The run is cancelled if the client disconnects.
func (s *Server) rpcAgentsRun(rc *RequestContext) {
	var p RunAgentRequest
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.AgentID == "" {
		rc.RespondError("invalid_params", "agentId is required")
		return
	}

	go func() {
		res, err := s.dispatcher.Run(rc.Client.Context(), p.AgentID, domain.Task(p.Task))
		if err != nil {
			rc.RespondErr(err)
			return
		}
		rc.Respond(res)
	}()
}

func (s *Server) rpcAgentsRuns(rc *RequestContext) {
	var p agentIDParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	runs, err := s.history.List(rc.Client.Context(), store.RunQuery{AgentID: p.AgentID, Type: p.Type, Limit: p.Limit})
	if err != nil {
		rc.RespondError(domain.CodeInternal, err.Error())
		return
	}
	rc.Respond(RunsResponse{Runs: runs})
}

type subscribeParams struct {
	AgentIDs []string `json:"agentIds"`
}

// SubscriptionResponse lists the agents a connection receives events for.
// All is true when the connection is not filtered.
type SubscriptionResponse struct {
	AgentIDs []string `json:"agentIds"`
	All      bool     `json:"all"`
}

func subscriptionOf(c *Client) SubscriptionResponse {
	ids := c.Subscriptions()
	if ids == nil {
		return SubscriptionResponse{AgentIDs: []string{}, All: true}
	}
	return SubscriptionResponse{AgentIDs: ids}
}

// rpcAgentsSubscribe limits agent.status events on this connection to the
// given agents. Unknown ids are rejected so typos do not silence events.
func (s *Server) rpcAgentsSubscribe(rc *RequestContext) {
	var p subscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if len(p.AgentIDs) == 0 {
		rc.RespondError("invalid_params", "agentIds is required")
		return
	}
	for _, id := range p.AgentIDs {
		if _, err := s.registry.Get(id); err != nil {
			rc.RespondErr(err)
			return
		}
	}

	rc.Client.Subscribe(p.AgentIDs...)
	rc.Respond(subscriptionOf(rc.Client))
}

// rpcAgentsUnsubscribe drops agents from the filter; with no ids the
// connection goes back to receiving every agent's events.
func (s *Server) rpcAgentsUnsubscribe(rc *RequestContext) {
	var p subscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Client.Unsubscribe(p.AgentIDs...)
	rc.Respond(subscriptionOf(rc.Client))
}

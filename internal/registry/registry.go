// Package registry owns the in-memory mapping from agent id to agent record.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/hooks"
	"github.com/soyeahso/agentos/internal/logging"
)

// Registry holds every registered agent for the lifetime of the process.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*domain.Agent
	order  []string // insertion order for list

	types *catalog.Store
	hooks *hooks.Manager
	log   *logging.Logger
	now   func() time.Time
	newID func() string
}

// New creates an empty registry resolving types against the given catalog.
func New(types *catalog.Store, hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*domain.Agent),
		types:  types,
		hooks:  hm,
		log:    log.Sub("registry"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Register creates an idle agent of the named type. The agent's config is
// the type's default config overlaid with cfg. An unknown or disabled type
// fails with domain.ErrInvalidType and leaves the registry untouched.
func (r *Registry) Register(ctx context.Context, name, typeName string, cfg map[string]any) (string, error) {
	at, ok := r.types.Lookup(typeName)
	if !ok {
		return "", &domain.OpError{Op: "register", Kind: domain.ErrInvalidType, AgentType: typeName}
	}
	if !at.Enabled {
		return "", &domain.OpError{Op: "register", Kind: domain.ErrInvalidType, AgentType: typeName, Err: domain.ErrAgentDisabled}
	}

	agent := &domain.Agent{
		ID:        r.newID(),
		Name:      name,
		Type:      typeName,
		Config:    at.MergeConfig(cfg),
		Status:    domain.StatusIdle,
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	r.agents[agent.ID] = agent
	r.order = append(r.order, agent.ID)
	r.mu.Unlock()

	r.log.Info().
		Str("agentId", agent.ID).
		Str("name", name).
		Str("type", typeName).
		Msg("agent registered")

	r.hooks.Emit(ctx, hooks.EventAgentRegistered, agent.ID, map[string]any{
		"name": name,
		"type": typeName,
	})

	return agent.ID, nil
}

// Get returns a snapshot of the agent.
func (r *Registry) Get(id string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, &domain.OpError{Op: "get", Kind: domain.ErrNotFound, AgentID: id}
	}
	return a.Clone(), nil
}

// List returns agent summaries in insertion order.
func (r *Registry) List() []domain.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Summary, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Summary())
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByStatus returns how many agents currently report each status.
func (r *Registry) CountByStatus() map[domain.Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.Status]int, 4)
	for _, a := range r.agents {
		out[a.Status]++
	}
	return out
}

// MarkRunning records the start of an admitted run. Only the dispatcher
// calls this.
func (r *Registry) MarkRunning(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return &domain.OpError{Op: "mark running", Kind: domain.ErrNotFound, AgentID: id}
	}
	at = at.UTC()
	a.Status = domain.StatusRunning
	a.LastRunAt = &at
	return nil
}

// MarkAttempt moves LastRunAt to the start of a retry attempt. Only the
// dispatcher calls this.
func (r *Registry) MarkAttempt(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return &domain.OpError{Op: "mark attempt", Kind: domain.ErrNotFound, AgentID: id}
	}
	at = at.UTC()
	a.LastRunAt = &at
	return nil
}

// MarkDone records the end of a run. A nil runErr clears the last error.
// Only the dispatcher calls this.
func (r *Registry) MarkDone(id string, status domain.Status, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.agents[id]
	if !ok {
		return &domain.OpError{Op: "mark done", Kind: domain.ErrNotFound, AgentID: id}
	}
	a.Status = status
	a.Runs++
	a.LastError = ""
	if runErr != nil {
		a.LastError = runErr.Error()
	}
	return nil
}

// Reset discards every agent and returns how many there were. The
// runtime calls it at teardown; agents are never persisted.
func (r *Registry) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.agents)
	r.agents = make(map[string]*domain.Agent)
	r.order = nil
	return n
}

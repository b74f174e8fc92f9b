// Package status provides read-only views over the registry and the
// dispatcher's in-flight counts.
package status

import (
	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/registry"
)

// InFlightCounter reports admitted runs per agent type.
type InFlightCounter interface {
	InFlight(typeName string) int
}

// TypeStatus is a catalog entry together with its live load. Secret
// values in DefaultConfig are masked.
type TypeStatus struct {
	Name          string         `json:"name"`
	Handler       string         `json:"handler"`
	Enabled       bool           `json:"enabled"`
	MaxInstances  int            `json:"maxInstances"`
	TimeoutMs     int64          `json:"timeoutMs"`
	RetryAttempts int            `json:"retryAttempts"`
	RetryDelayMs  int64          `json:"retryDelayMs"`
	DefaultConfig map[string]any `json:"defaultConfig,omitempty"`
	InFlight      int            `json:"inFlight"`
	Available     int            `json:"available"`
}

// Overview summarizes the whole system.
type Overview struct {
	Agents   int                   `json:"agents"`
	ByStatus map[domain.Status]int `json:"byStatus"`
	Types    []TypeStatus          `json:"types"`
}

// Reporter answers status queries. Every call reads the current state;
// nothing is cached.
type Reporter struct {
	registry *registry.Registry
	types    *catalog.Store
	inflight InFlightCounter
}

// NewReporter creates a reporter.
func NewReporter(reg *registry.Registry, types *catalog.Store, inflight InFlightCounter) *Reporter {
	return &Reporter{registry: reg, types: types, inflight: inflight}
}

// StatusOf returns the status report for one agent.
func (r *Reporter) StatusOf(agentID string) (domain.StatusReport, error) {
	a, err := r.registry.Get(agentID)
	if err != nil {
		return domain.StatusReport{}, &domain.OpError{Op: "status", Kind: domain.ErrNotFound, AgentID: agentID}
	}
	return a.Report(), nil
}

// Agents lists agent summaries in registration order.
func (r *Reporter) Agents() []domain.Summary {
	return r.registry.List()
}

// Types returns every catalog entry with its current in-flight count.
func (r *Reporter) Types() []TypeStatus {
	all := r.types.Load().All()
	out := make([]TypeStatus, 0, len(all))
	for _, at := range all {
		n := r.inflight.InFlight(at.Name)
		out = append(out, TypeStatus{
			Name:          at.Name,
			Handler:       at.Handler,
			Enabled:       at.Enabled,
			MaxInstances:  at.MaxInstances,
			TimeoutMs:     at.TimeoutMs(),
			RetryAttempts: at.RetryAttempts,
			RetryDelayMs:  at.RetryDelayMs(),
			DefaultConfig: domain.RedactConfig(at.DefaultConfig),
			InFlight:      n,
			Available:     max(at.MaxInstances-n, 0),
		})
	}
	return out
}

// Overview returns agent counts and type load.
func (r *Reporter) Overview() Overview {
	return Overview{
		Agents:   r.registry.Count(),
		ByStatus: r.registry.CountByStatus(),
		Types:    r.Types(),
	}
}

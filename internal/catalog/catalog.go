// Package catalog holds the agent type catalog: the static table of agent
// types with their concurrency limit, timeout, retry policy, and default
// configuration.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/soyeahso/agentos/internal/config"
)

// ErrEmpty is returned when a catalog would contain no types.
var ErrEmpty = errors.New("agent type catalog is empty")

// AgentType describes a class of agents sharing a handler, concurrency
// limit, timeout, and retry policy.
type AgentType struct {
	Name          string         `json:"name"`
	Handler       string         `json:"handler"`
	Enabled       bool           `json:"enabled"`
	MaxInstances  int            `json:"maxInstances"`
	Timeout       time.Duration  `json:"-"`
	RetryAttempts int            `json:"retryAttempts"`
	RetryDelay    time.Duration  `json:"-"`
	DefaultConfig map[string]any `json:"defaultConfig,omitempty"`
}

// TimeoutMs returns the per-attempt timeout in milliseconds.
func (t AgentType) TimeoutMs() int64 { return t.Timeout.Milliseconds() }

// RetryDelayMs returns the inter-attempt delay in milliseconds.
func (t AgentType) RetryDelayMs() int64 { return t.RetryDelay.Milliseconds() }

// MergeConfig returns the type defaults overlaid with overrides. Neither
// input is modified.
func (t AgentType) MergeConfig(overrides map[string]any) map[string]any {
	out := make(map[string]any, len(t.DefaultConfig)+len(overrides))
	maps.Copy(out, t.DefaultConfig)
	maps.Copy(out, overrides)
	return out
}

func (t AgentType) clone() AgentType {
	t.DefaultConfig = maps.Clone(t.DefaultConfig)
	return t
}

// Catalog is an immutable snapshot of agent types. It is safe for
// concurrent use without locking.
type Catalog struct {
	types map[string]AgentType
	order []string
}

// New builds a catalog from the given types. Names must be unique and
// every type needs at least one instance and a positive timeout.
func New(types ...AgentType) (*Catalog, error) {
	if len(types) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{types: make(map[string]AgentType, len(types))}
	for _, t := range types {
		if t.Name == "" {
			return nil, fmt.Errorf("agent type with empty name")
		}
		if _, dup := c.types[t.Name]; dup {
			return nil, fmt.Errorf("duplicate agent type: %s", t.Name)
		}
		if t.MaxInstances < 1 {
			return nil, fmt.Errorf("agent type %s: maxInstances must be at least 1", t.Name)
		}
		if t.Timeout <= 0 {
			return nil, fmt.Errorf("agent type %s: timeout must be positive", t.Name)
		}
		if t.RetryAttempts < 0 || t.RetryDelay < 0 {
			return nil, fmt.Errorf("agent type %s: retry policy must not be negative", t.Name)
		}
		if t.Handler == "" {
			t.Handler = t.Name
		}
		c.types[t.Name] = t.clone()
		c.order = append(c.order, t.Name)
	}
	return c, nil
}

// FromConfig converts the configured agent types into a catalog.
func FromConfig(cfg config.AgentsConfig) (*Catalog, error) {
	types := make([]AgentType, 0, len(cfg.Types))
	for _, t := range cfg.Types {
		types = append(types, AgentType{
			Name:          t.Name,
			Handler:       t.HandlerName(),
			Enabled:       t.IsEnabled(),
			MaxInstances:  t.MaxInstances,
			Timeout:       time.Duration(t.TimeoutMs) * time.Millisecond,
			RetryAttempts: t.RetryAttempts,
			RetryDelay:    time.Duration(t.RetryDelayMs) * time.Millisecond,
			DefaultConfig: t.DefaultConfig,
		})
	}
	return New(types...)
}

// Lookup returns the named type. The returned value is a copy.
func (c *Catalog) Lookup(name string) (AgentType, bool) {
	t, ok := c.types[name]
	if !ok {
		return AgentType{}, false
	}
	return t.clone(), true
}

// Names returns all type names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// All returns copies of all types in declaration order.
func (c *Catalog) All() []AgentType {
	out := make([]AgentType, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.types[name].clone())
	}
	return out
}

// Len returns the number of types.
func (c *Catalog) Len() int { return len(c.order) }

// Store holds the current catalog snapshot. Snapshots are swapped whole,
// so readers never observe a partially updated catalog.
type Store struct {
	cur atomic.Pointer[Catalog]
}

// NewStore creates a store serving c.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.cur.Store(c)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Catalog { return s.cur.Load() }

// Swap installs next and returns the previous snapshot.
func (s *Store) Swap(next *Catalog) *Catalog { return s.cur.Swap(next) }

// Lookup resolves a type against the current snapshot.
func (s *Store) Lookup(name string) (AgentType, bool) { return s.Load().Lookup(name) }

// Package handler defines the executable logic bound to agent types and the
// set that indexes handlers by name.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
)

// Handler executes one attempt of a task for an agent. cfg is the agent's
// merged configuration. Implementations must return promptly once ctx is
// done and must not retain cfg or task after returning.
type Handler interface {
	Name() string
	Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error)
}

// Func adapts a plain function to the Handler interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, cfg map[string]any, task domain.Task) (any, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error) {
	return f.Fn(ctx, cfg, task)
}

// Set is the capability table from handler name to Handler. Handlers are
// registered at startup; lookups are safe for concurrent use.
type Set struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	order    []string // insertion order for listing
	log      *logging.Logger
}

// NewSet creates an empty handler set.
func NewSet(log *logging.Logger) *Set {
	return &Set{
		handlers: make(map[string]Handler),
		log:      log.Sub("handlers"),
	}
}

// Builtins returns a set holding the four built-in handlers. client is used
// for outbound HTTP; nil selects a default client.
func Builtins(log *logging.Logger, client *http.Client) *Set {
	if client == nil {
		client = defaultHTTPClient()
	}
	s := NewSet(log)
	for _, h := range []Handler{
		NewWebScraper(client, log),
		NewDataProcessor(log),
		NewAPICaller(client, log),
		NewGeneric(log),
	} {
		// Names are distinct constants.
		_ = s.Register(h)
	}
	return s
}

// Register adds a handler. Names must be unique.
func (s *Set) Register(h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[h.Name()]; exists {
		return fmt.Errorf("handler already registered: %s", h.Name())
	}
	s.handlers[h.Name()] = h
	s.order = append(s.order, h.Name())

	s.log.Debug().Str("handler", h.Name()).Msg("handler registered")
	return nil
}

// Get returns the handler registered under name.
func (s *Set) Get(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[name]
	return h, ok
}

// Names returns registered handler names in registration order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Count returns the number of registered handlers.
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// Bind verifies that every enabled type in cat resolves to a registered
// handler. Disabled types may name handlers that do not exist.
func (s *Set) Bind(cat *catalog.Catalog) error {
	var errs []error
	for _, at := range cat.All() {
		if !at.Enabled {
			continue
		}
		if _, ok := s.Get(at.Handler); !ok {
			errs = append(errs, fmt.Errorf("agent type %s: no handler named %q", at.Name, at.Handler))
		}
	}
	return errors.Join(errs...)
}

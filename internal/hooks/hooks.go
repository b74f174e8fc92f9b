// Package hooks provides an event-driven hook system for agent and gateway
// lifecycle events.
package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/agentos/internal/logging"
)

// Event names for the hook system.
const (
	EventAgentRegistered = "agent_registered"
	EventRunAdmitted     = "run_admitted"
	EventRunRejected     = "run_rejected"
	EventRunRetry        = "run_retry"
	EventRunFinished     = "run_finished"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// Payload carries event data to hook handlers.
type Payload struct {
	Event   string         `json:"event"`
	AgentID string         `json:"agentId,omitempty"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// Handler reacts to one event. A returned error or a panic is logged and
// does not stop later handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager fans lifecycle events out to registered handlers.
type Manager struct {
	mu   sync.RWMutex
	subs []subscription
	log  *logging.Logger
	now  func() time.Time

	// EmitAsync queue, drained in order by at most one goroutine.
	qmu      sync.Mutex
	idle     *sync.Cond
	pending  []delivery
	draining bool
}

type delivery struct {
	ctx     context.Context
	targets []subscription
	p       Payload
}

type subscription struct {
	name  string
	event string // empty matches every event
	fn    Handler
}

func (s subscription) matches(event string) bool {
	return s.event == "" || s.event == event
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	m := &Manager{log: log.Sub("hooks"), now: time.Now}
	m.idle = sync.NewCond(&m.qmu)
	return m
}

// On registers a named handler for one event.
func (m *Manager) On(event, name string, fn Handler) {
	m.add(subscription{name: name, event: event, fn: fn})
}

// OnAll registers a named handler for every event.
func (m *Manager) OnAll(name string, fn Handler) {
	m.add(subscription{name: name, fn: fn})
}

func (m *Manager) add(s subscription) {
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()
	m.log.Debug().Str("event", s.event).Str("handler", s.name).Msg("hook registered")
}

// Off removes every handler registered under name and returns how many
// were removed.
func (m *Manager) Off(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	removed := len(m.subs) - len(kept)
	clear(m.subs[len(kept):])
	m.subs = kept
	return removed
}

// Handlers lists the names subscribed to event, in call order.
func (m *Manager) Handlers(event string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for _, s := range m.subs {
		if s.matches(event) {
			names = append(names, s.name)
		}
	}
	return names
}

func (m *Manager) targets(event string) []subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []subscription
	for _, s := range m.subs {
		if s.matches(event) {
			out = append(out, s)
		}
	}
	return out
}

// Emit calls every handler subscribed to event synchronously, in
// registration order.
func (m *Manager) Emit(ctx context.Context, event, agentID string, data map[string]any) {
	targets := m.targets(event)
	if len(targets) == 0 {
		return
	}
	p := Payload{Event: event, AgentID: agentID, At: m.now(), Data: data}
	for _, s := range targets {
		m.call(ctx, s, p)
	}
}

// EmitAsync queues the event and returns at once. Queued events are
// delivered one at a time in emit order, so a slow handler delays later
// events but never the emitter. Handlers see ctx without its cancellation.
func (m *Manager) EmitAsync(ctx context.Context, event, agentID string, data map[string]any) {
	targets := m.targets(event)
	if len(targets) == 0 {
		return
	}
	d := delivery{
		ctx:     context.WithoutCancel(ctx),
		targets: targets,
		p:       Payload{Event: event, AgentID: agentID, At: m.now(), Data: data},
	}

	m.qmu.Lock()
	m.pending = append(m.pending, d)
	start := !m.draining
	m.draining = true
	m.qmu.Unlock()

	if start {
		go m.drain()
	}
}

func (m *Manager) drain() {
	for {
		m.qmu.Lock()
		if len(m.pending) == 0 {
			m.draining = false
			m.pending = nil
			m.idle.Broadcast()
			m.qmu.Unlock()
			return
		}
		d := m.pending[0]
		m.pending[0] = delivery{}
		m.pending = m.pending[1:]
		m.qmu.Unlock()

		for _, s := range d.targets {
			m.call(d.ctx, s, d.p)
		}
	}
}

// Wait blocks until every event queued by EmitAsync has been delivered.
func (m *Manager) Wait() {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	for m.draining {
		m.idle.Wait()
	}
}

func (m *Manager) call(ctx context.Context, s subscription, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("event", p.Event).
				Str("handler", s.name).
				Msg("hook handler panicked")
		}
	}()
	if err := s.fn(ctx, p); err != nil {
		m.log.Warn().Err(err).Str("event", p.Event).Str("handler", s.name).Msg("hook handler error")
	}
}

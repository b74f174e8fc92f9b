// Package dispatch admits, executes, and retries agent runs. Admission is
// bounded per agent type; each attempt runs under the type's timeout.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/handler"
	"github.com/soyeahso/agentos/internal/hooks"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/soyeahso/agentos/internal/registry"
)

// ErrNoCatalog is returned by New when there are no agent types to serve.
var ErrNoCatalog = errors.New("dispatcher requires a non-empty agent type catalog")

const drainPollInterval = 20 * time.Millisecond

// RunRecorder receives a record for every admitted run once it finishes.
type RunRecorder interface {
	Record(ctx context.Context, rec domain.RunRecord) error
}

// Dispatcher runs agents against tasks.
type Dispatcher struct {
	registry *registry.Registry
	types    *catalog.Store
	handlers *handler.Set
	hooks    *hooks.Manager
	history  RunRecorder
	log      *logging.Logger

	slots *slots

	now   func() time.Time
	newID func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHistory records every finished run to r.
func WithHistory(r RunRecorder) Option {
	return func(d *Dispatcher) { d.history = r }
}

// New creates a dispatcher. It fails if the catalog is empty or if an
// enabled type has no handler.
func New(reg *registry.Registry, types *catalog.Store, handlers *handler.Set, hm *hooks.Manager, log *logging.Logger, opts ...Option) (*Dispatcher, error) {
	cat := types.Load()
	if cat == nil || cat.Len() == 0 {
		return nil, ErrNoCatalog
	}
	if err := handlers.Bind(cat); err != nil {
		return nil, fmt.Errorf("binding handlers: %w", err)
	}

	d := &Dispatcher{
		registry: reg,
		types:    types,
		handlers: handlers,
		hooks:    hm,
		log:      log.Sub("dispatch"),
		slots:    newSlots(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Reload validates next against the handler set and installs it. Runs
// already admitted keep the type settings they started with.
func (d *Dispatcher) Reload(next *catalog.Catalog) error {
	if next == nil || next.Len() == 0 {
		return ErrNoCatalog
	}
	if err := d.handlers.Bind(next); err != nil {
		return fmt.Errorf("binding handlers: %w", err)
	}
	d.types.Swap(next)
	d.log.Info().Strs("types", next.Names()).Msg("agent type catalog reloaded")
	return nil
}

// InFlight returns the number of admitted runs of typeName.
func (d *Dispatcher) InFlight(typeName string) int {
	return d.slots.count(typeName)
}

// InFlightAll returns in-flight counts for every type with at least one
// admitted run.
func (d *Dispatcher) InFlightAll() map[string]int {
	return d.slots.snapshot()
}

// Drain waits until no runs are in flight or ctx is done. New runs are
// still admitted while draining.
func (d *Dispatcher) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for len(d.slots.snapshot()) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Run executes task on the agent. It returns once the run has completed or
// failed; failures are *domain.OpError values of kind NotFound,
// AgentDisabled, AtCapacity, Timeout, or HandlerError.
func (d *Dispatcher) Run(ctx context.Context, agentID string, task domain.Task) (*domain.RunResult, error) {
	agent, err := d.registry.Get(agentID)
	if err != nil {
		return nil, &domain.OpError{Op: "run", Kind: domain.ErrNotFound, AgentID: agentID}
	}

	at, ok := d.types.Lookup(agent.Type)
	if !ok || !at.Enabled {
		d.reject(ctx, agent, domain.CodeAgentDisabled)
		return nil, &domain.OpError{Op: "run", Kind: domain.ErrAgentDisabled, AgentID: agentID, AgentType: agent.Type}
	}

	h, ok := d.handlers.Get(at.Handler)
	if !ok {
		return nil, &domain.OpError{
			Op: "run", Kind: domain.ErrHandler, AgentID: agentID, AgentType: agent.Type,
			Err: fmt.Errorf("no handler named %q", at.Handler),
		}
	}

	release, ok := d.slots.acquire(at.Name, at.MaxInstances)
	if !ok {
		d.reject(ctx, agent, domain.CodeAtCapacity)
		return nil, &domain.OpError{Op: "run", Kind: domain.ErrAtCapacity, AgentID: agentID, AgentType: agent.Type}
	}
	defer release()

	runID := d.newID()
	log := d.log.With("runId", runID).With("agentId", agentID).With("type", at.Name)

	started := d.now()
	if err := d.registry.MarkRunning(agentID, started); err != nil {
		return nil, &domain.OpError{Op: "run", Kind: domain.ErrNotFound, AgentID: agentID, AgentType: at.Name}
	}

	log.Info().Int("maxInstances", at.MaxInstances).Msg("run admitted")
	d.hooks.EmitAsync(ctx, hooks.EventRunAdmitted, agentID, map[string]any{
		"runId": runID,
		"type":  at.Name,
	})

	maxAttempts := at.RetryAttempts + 1
	var (
		output   any
		lastErr  error
		timedOut bool
		attempts int
	)

	for attempts = 1; attempts <= maxAttempts; attempts++ {
		if attempts > 1 {
			if err := d.registry.MarkAttempt(agentID, d.now()); err != nil {
				log.Error().Err(err).Msg("failed to record attempt start")
			}
		}
		output, timedOut, lastErr = d.attempt(ctx, h, agent.Config, task, at.Timeout)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempts).
			Int("maxAttempts", maxAttempts).
			Bool("timedOut", timedOut).
			Msg("run attempt failed")

		if attempts == maxAttempts {
			break
		}

		d.hooks.EmitAsync(ctx, hooks.EventRunRetry, agentID, map[string]any{
			"runId":   runID,
			"type":    at.Name,
			"attempt": attempts,
			"error":   lastErr.Error(),
		})

		if err := wait(ctx, at.RetryDelay); err != nil {
			break
		}
	}

	finished := d.now()
	result := &domain.RunResult{
		RunID:      runID,
		AgentID:    agentID,
		AgentType:  at.Name,
		Output:     output,
		Attempts:   attempts,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Duration:   finished.Sub(started),
	}

	var runErr error
	switch {
	case lastErr == nil:
	case ctx.Err() != nil:
		runErr = &domain.OpError{Op: "run", Kind: domain.ErrHandler, AgentID: agentID, AgentType: at.Name, Attempts: attempts, Err: ctx.Err()}
	case timedOut:
		runErr = &domain.OpError{Op: "run", Kind: domain.ErrTimeout, AgentID: agentID, AgentType: at.Name, Attempts: attempts, Err: lastErr}
	default:
		runErr = &domain.OpError{Op: "run", Kind: domain.ErrHandler, AgentID: agentID, AgentType: at.Name, Attempts: attempts, Err: lastErr}
	}

	status := domain.StatusCompleted
	if runErr != nil {
		status = domain.StatusError
	}
	// Status is written before the slot is released: at most maxInstances
	// agents of a type report running. History and hooks come after, so
	// they never hold the slot.
	if err := d.registry.MarkDone(agentID, status, runErr); err != nil {
		log.Error().Err(err).Msg("failed to record run status")
	}
	release()

	d.finish(ctx, log, agent, result, status, runErr)

	if runErr != nil {
		return nil, runErr
	}
	return result, nil
}

// attempt runs h once under timeout. The handler runs in its own goroutine
// so that one ignoring its context still yields a timeout.
func (d *Dispatcher) attempt(ctx context.Context, h handler.Handler, cfg map[string]any, task domain.Task, timeout time.Duration) (any, bool, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		out, err := h.Execute(actx, maps.Clone(cfg), maps.Clone(task))
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, true, fmt.Errorf("attempt exceeded %s: %w", timeout, o.err)
		}
		return o.out, false, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("attempt exceeded %s", timeout)
	}
}

func (d *Dispatcher) reject(ctx context.Context, agent domain.Agent, code string) {
	d.log.Info().
		Str("agentId", agent.ID).
		Str("type", agent.Type).
		Str("reason", code).
		Msg("run rejected")
	d.hooks.EmitAsync(ctx, hooks.EventRunRejected, agent.ID, map[string]any{
		"type":   agent.Type,
		"reason": code,
	})
}

func (d *Dispatcher) finish(ctx context.Context, log *logging.Logger, agent domain.Agent, res *domain.RunResult, status domain.Status, runErr error) {
	rec := domain.RunRecord{
		RunID:      res.RunID,
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		AgentType:  res.AgentType,
		Status:     status,
		Attempts:   res.Attempts,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		DurationMs: res.Duration.Milliseconds(),
	}
	if runErr != nil {
		rec.ErrorCode = domain.Code(runErr)
		rec.Error = runErr.Error()
	}

	event := log.Info()
	if runErr != nil {
		event = log.Warn().Err(runErr).Str("code", rec.ErrorCode)
	}
	event.
		Str("status", string(status)).
		Int("attempts", res.Attempts).
		Dur("duration", res.Duration).
		Msg("run finished")

	if d.history != nil {
		if err := d.history.Record(context.WithoutCancel(ctx), rec); err != nil {
			log.Error().Err(err).Msg("failed to record run history")
		}
	}

	data := map[string]any{
		"runId":    rec.RunID,
		"type":     rec.AgentType,
		"status":   string(status),
		"attempts": rec.Attempts,
	}
	if runErr != nil {
		data["code"] = rec.ErrorCode
		data["error"] = rec.Error
	}
	d.hooks.EmitAsync(ctx, hooks.EventRunFinished, agent.ID, data)
}

// wait pauses for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

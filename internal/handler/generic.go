package handler

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
)

// Generic echoes its task back after latencyMs. A task with fail: true
// fails with the task's error message, if any.
type Generic struct {
	log *logging.Logger
	now func() time.Time
}

// NewGeneric creates the generic handler.
func NewGeneric(log *logging.Logger) *Generic {
	return &Generic{log: log.Sub("generic"), now: time.Now}
}

func (g *Generic) Name() string { return "generic" }

func (g *Generic) Execute(ctx context.Context, cfg map[string]any, task domain.Task) (any, error) {
	if err := sleep(ctx, latency(cfg)); err != nil {
		return nil, err
	}

	if boolOption(task, "fail", false) {
		return nil, errors.New(stringOption(task, "error", "task requested failure"))
	}

	return map[string]any{
		"echo":        maps.Clone(map[string]any(task)),
		"processedAt": g.now().UTC(),
	}, nil
}

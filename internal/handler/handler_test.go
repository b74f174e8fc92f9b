package handler

import (
	"context"
	"testing"
	"time"

	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestBuiltins(t *testing.T) {
	s := Builtins(testLog(), nil)
	assert.Equal(t, []string{"web-scraper", "data-processor", "api-caller", "generic"}, s.Names())
	assert.Equal(t, 4, s.Count())

	h, ok := s.Get("generic")
	require.True(t, ok)
	assert.Equal(t, "generic", h.Name())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSetRegisterDuplicate(t *testing.T) {
	s := NewSet(testLog())
	h := Func{ID: "x", Fn: func(context.Context, map[string]any, domain.Task) (any, error) { return nil, nil }}

	require.NoError(t, s.Register(h))
	err := s.Register(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestFuncAdapter(t *testing.T) {
	h := Func{ID: "double", Fn: func(_ context.Context, _ map[string]any, task domain.Task) (any, error) {
		return task.String("v") + task.String("v"), nil
	}}
	out, err := h.Execute(context.Background(), nil, domain.Task{"v": "ab"})
	require.NoError(t, err)
	assert.Equal(t, "abab", out)
}

func TestBind(t *testing.T) {
	s := Builtins(testLog(), nil)

	cat, err := catalog.New(
		catalog.AgentType{Name: "web-scraper", Enabled: true, MaxInstances: 1, Timeout: time.Second},
		catalog.AgentType{Name: "nightly", Handler: "data-processor", Enabled: true, MaxInstances: 1, Timeout: time.Second},
		catalog.AgentType{Name: "retired", Handler: "ftp-mirror", Enabled: false, MaxInstances: 1, Timeout: time.Second},
	)
	require.NoError(t, err)
	assert.NoError(t, s.Bind(cat))

	bad, err := catalog.New(
		catalog.AgentType{Name: "quantum", Enabled: true, MaxInstances: 1, Timeout: time.Second},
		catalog.AgentType{Name: "mailer", Handler: "smtp", Enabled: true, MaxInstances: 1, Timeout: time.Second},
	)
	require.NoError(t, err)
	err = s.Bind(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `agent type quantum: no handler named "quantum"`)
	assert.Contains(t, err.Error(), `agent type mailer: no handler named "smtp"`)
}

func TestOptions(t *testing.T) {
	m := map[string]any{
		"yamlInt":   3,
		"jsonFloat": float64(7),
		"str":       "12",
		"flag":      true,
		"flagStr":   "true",
		"headers":   map[string]any{"X-Num": 1, "X-Str": "v"},
		"scopes":    []any{"read", "write"},
		"one":       "solo",
	}

	assert.Equal(t, 3, intOption(m, "yamlInt", 0))
	assert.Equal(t, 7, intOption(m, "jsonFloat", 0))
	assert.Equal(t, 12, intOption(m, "str", 0))
	assert.Equal(t, 5, intOption(m, "missing", 5))

	assert.True(t, boolOption(m, "flag", false))
	assert.True(t, boolOption(m, "flagStr", false))
	assert.True(t, boolOption(m, "missing", true))

	assert.Equal(t, "12", stringOption(m, "str", "d"))
	assert.Equal(t, "d", stringOption(m, "yamlInt", "d"))

	assert.Equal(t, map[string]string{"X-Num": "1", "X-Str": "v"}, stringMapOption(m, "headers"))
	assert.Nil(t, stringMapOption(m, "missing"))

	assert.Equal(t, []string{"read", "write"}, stringSliceOption(m, "scopes"))
	assert.Equal(t, []string{"solo"}, stringSliceOption(m, "one"))
	assert.Nil(t, stringSliceOption(m, "missing"))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, sleep(context.Background(), 0))
}

func TestGeneric(t *testing.T) {
	g := NewGeneric(testLog())

	out, err := g.Execute(context.Background(), map[string]any{"latencyMs": 0}, domain.Task{"msg": "hi"})
	require.NoError(t, err)
	res := out.(map[string]any)
	assert.Equal(t, map[string]any{"msg": "hi"}, res["echo"])

	_, err = g.Execute(context.Background(), nil, domain.Task{"fail": true, "error": "nope"})
	require.Error(t, err)
	assert.Equal(t, "nope", err.Error())

	_, err = g.Execute(context.Background(), nil, domain.Task{"fail": true})
	assert.EqualError(t, err, "task requested failure")
}

func TestGenericCancelledDuringLatency(t *testing.T) {
	g := NewGeneric(testLog())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Execute(ctx, map[string]any{"latencyMs": 10000}, domain.Task{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

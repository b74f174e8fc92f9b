package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/hooks"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func testCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	cat, err := catalog.New(
		catalog.AgentType{
			Name: "web-scraper", Enabled: true, MaxInstances: 3, Timeout: time.Minute,
			DefaultConfig: map[string]any{"userAgent": "bot", "latencyMs": 2000},
		},
		catalog.AgentType{Name: "legacy", Enabled: false, MaxInstances: 1, Timeout: time.Second},
	)
	require.NoError(t, err)
	return catalog.NewStore(cat)
}

func testRegistry(t *testing.T) (*Registry, *hooks.Manager) {
	t.Helper()
	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)
	return New(testCatalog(t), hm, log), hm
}

func TestRegister(t *testing.T) {
	reg, _ := testRegistry(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return fixed }

	id, err := reg.Register(context.Background(), "Scraper A", "web-scraper", map[string]any{"latencyMs": 5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	a, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Scraper A", a.Name)
	assert.Equal(t, "web-scraper", a.Type)
	assert.Equal(t, domain.StatusIdle, a.Status)
	assert.Nil(t, a.LastRunAt)
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Equal(t, map[string]any{"userAgent": "bot", "latencyMs": 5}, a.Config)
}

func TestRegisterEmitsHook(t *testing.T) {
	reg, hm := testRegistry(t)

	var got hooks.Payload
	hm.On(hooks.EventAgentRegistered, "test", func(_ context.Context, p hooks.Payload) error {
		got = p
		return nil
	})

	id, err := reg.Register(context.Background(), "A", "web-scraper", nil)
	require.NoError(t, err)
	assert.Equal(t, id, got.AgentID)
	assert.Equal(t, "web-scraper", got.Data["type"])
}

func TestRegisterRejectsBadType(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		disabled bool
	}{
		{"unknown", "quantum-annealer", false},
		{"disabled", "legacy", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, hm := testRegistry(t)
			var emitted bool
			hm.OnAll("test", func(_ context.Context, _ hooks.Payload) error {
				emitted = true
				return nil
			})

			id, err := reg.Register(context.Background(), "x", tt.typeName, nil)
			require.Error(t, err)
			assert.Empty(t, id)
			assert.ErrorIs(t, err, domain.ErrInvalidType)
			assert.Equal(t, tt.disabled, errors.Is(err, domain.ErrAgentDisabled))
			assert.Equal(t, domain.CodeInvalidType, domain.Code(err))

			assert.Zero(t, reg.Count())
			assert.Empty(t, reg.List())
			assert.False(t, emitted)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	reg, _ := testRegistry(t)

	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var op *domain.OpError
	require.ErrorAs(t, err, &op)
	assert.Equal(t, "missing", op.AgentID)
}

func TestGetReturnsSnapshot(t *testing.T) {
	reg, _ := testRegistry(t)
	id, err := reg.Register(context.Background(), "A", "web-scraper", nil)
	require.NoError(t, err)

	a, _ := reg.Get(id)
	a.Status = domain.StatusError
	a.Config["userAgent"] = "changed"

	again, _ := reg.Get(id)
	assert.Equal(t, domain.StatusIdle, again.Status)
	assert.Equal(t, "bot", again.Config["userAgent"])
}

func TestListInsertionOrder(t *testing.T) {
	reg, _ := testRegistry(t)

	var ids []string
	for i := range 5 {
		id, err := reg.Register(context.Background(), fmt.Sprintf("agent-%d", i), "web-scraper", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list := reg.List()
	require.Len(t, list, 5)
	for i, s := range list {
		assert.Equal(t, ids[i], s.ID)
		assert.Equal(t, fmt.Sprintf("agent-%d", i), s.Name)
		assert.Equal(t, domain.StatusIdle, s.Status)
	}
}

func TestConcurrentRegisterUniqueIDs(t *testing.T) {
	reg, _ := testRegistry(t)
	const n = 100

	ids := make([]string, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			id, err := reg.Register(context.Background(), "a", "web-scraper", nil)
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, n, reg.Count())
	assert.Len(t, reg.List(), n)
}

func TestMarkRunningAndDone(t *testing.T) {
	reg, _ := testRegistry(t)
	id, err := reg.Register(context.Background(), "A", "web-scraper", nil)
	require.NoError(t, err)

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, reg.MarkRunning(id, started))

	a, _ := reg.Get(id)
	assert.Equal(t, domain.StatusRunning, a.Status)
	require.NotNil(t, a.LastRunAt)
	assert.Equal(t, started, *a.LastRunAt)

	require.NoError(t, reg.MarkDone(id, domain.StatusError, errors.New("boom")))
	a, _ = reg.Get(id)
	assert.Equal(t, domain.StatusError, a.Status)
	assert.Equal(t, 1, a.Runs)
	assert.Equal(t, "boom", a.LastError)

	require.NoError(t, reg.MarkDone(id, domain.StatusCompleted, nil))
	a, _ = reg.Get(id)
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.Equal(t, 2, a.Runs)
	assert.Empty(t, a.LastError)

	assert.ErrorIs(t, reg.MarkRunning("missing", started), domain.ErrNotFound)
	assert.ErrorIs(t, reg.MarkDone("missing", domain.StatusCompleted, nil), domain.ErrNotFound)
}

func TestCountByStatus(t *testing.T) {
	reg, _ := testRegistry(t)
	a, _ := reg.Register(context.Background(), "A", "web-scraper", nil)
	_, _ = reg.Register(context.Background(), "B", "web-scraper", nil)
	require.NoError(t, reg.MarkRunning(a, time.Now()))

	counts := reg.CountByStatus()
	assert.Equal(t, 1, counts[domain.StatusRunning])
	assert.Equal(t, 1, counts[domain.StatusIdle])
}

func TestRegisterAfterTypeDisabled(t *testing.T) {
	reg, _ := testRegistry(t)
	id, err := reg.Register(context.Background(), "A", "web-scraper", nil)
	require.NoError(t, err)

	next, err := catalog.New(catalog.AgentType{Name: "web-scraper", Enabled: false, MaxInstances: 3, Timeout: time.Minute})
	require.NoError(t, err)
	reg.types.Swap(next)

	_, err = reg.Register(context.Background(), "B", "web-scraper", nil)
	assert.ErrorIs(t, err, domain.ErrAgentDisabled)

	// Existing agents are kept.
	_, err = reg.Get(id)
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Count())
}

func TestReset(t *testing.T) {
	reg, _ := testRegistry(t)
	_, _ = reg.Register(context.Background(), "A", "web-scraper", nil)
	_, _ = reg.Register(context.Background(), "B", "web-scraper", nil)
	assert.Equal(t, 2, reg.Reset())
	assert.Zero(t, reg.Count())
	assert.Empty(t, reg.List())
}

func TestMarkAttempt(t *testing.T) {
	reg, _ := testRegistry(t)
	id, err := reg.Register(context.Background(), "A", "web-scraper", nil)
	require.NoError(t, err)

	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, reg.MarkRunning(id, first))
	require.NoError(t, reg.MarkAttempt(id, first.Add(3*time.Second)))

	a, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, a.Status)
	assert.Equal(t, first.Add(3*time.Second), *a.LastRunAt)

	assert.ErrorIs(t, reg.MarkAttempt("missing", first), domain.ErrNotFound)
}

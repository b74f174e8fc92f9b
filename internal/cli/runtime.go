package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/dispatch"
	"github.com/soyeahso/agentos/internal/handler"
	"github.com/soyeahso/agentos/internal/hooks"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/soyeahso/agentos/internal/registry"
	"github.com/soyeahso/agentos/internal/status"
	"github.com/soyeahso/agentos/internal/store"
)

// outboundTimeout bounds a single HTTP request made by a handler. The
// per-attempt type timeout still applies on top of it.
const outboundTimeout = 30 * time.Second

// runtime is the in-process agent stack shared by serve and exec.
type runtime struct {
	hooks      *hooks.Manager
	types      *catalog.Store
	registry   *registry.Registry
	handlers   *handler.Set
	dispatcher *dispatch.Dispatcher
	status     *status.Reporter
	history    store.RunStore
	log        *logging.Logger
}

func newRuntime(cfg config.Config, p config.Paths, log *logging.Logger) (*runtime, error) {
	cat, err := catalog.FromConfig(cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("building type catalog: %w", err)
	}

	history, err := store.OpenHistory(cfg.History, p.HistoryDB(cfg.History), log)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	rt := &runtime{
		hooks:    hooks.NewManager(log),
		types:    catalog.NewStore(cat),
		handlers: handler.Builtins(log, &http.Client{Timeout: outboundTimeout}),
		history:  history,
		log:      log,
	}
	rt.registry = registry.New(rt.types, rt.hooks, log)

	rt.dispatcher, err = dispatch.New(rt.registry, rt.types, rt.handlers, rt.hooks, log, dispatch.WithHistory(history))
	if err != nil {
		history.Close()
		return nil, err
	}
	rt.status = status.NewReporter(rt.registry, rt.types, rt.dispatcher)
	return rt, nil
}

// reload re-reads the config file and swaps in its agent types. Other
// settings only take effect on restart.
func (rt *runtime) reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		return fmt.Errorf("config validation failed: %s", issues[0])
	}
	cat, err := catalog.FromConfig(cfg.Agents)
	if err != nil {
		return err
	}
	return rt.dispatcher.Reload(cat)
}

// close waits for queued hook deliveries, drops the in-memory agents and
// closes the run history.
func (rt *runtime) close() error {
	rt.hooks.Wait()
	if n := rt.registry.Reset(); n > 0 {
		rt.log.Debug().Int("agents", n).Msg("registry cleared")
	}
	return rt.history.Close()
}

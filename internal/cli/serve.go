package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/gateway"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/soyeahso/agentos/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// drainTimeout bounds how long serve waits for in-flight runs on shutdown.
const drainTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the dispatcher and its gateway",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			root, closer, err := logging.FromConfig(cfg.Logging)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, root)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}

// serve runs the gateway, history pruner, and reload listener until ctx is
// done, then drains in-flight runs.
func serve(ctx context.Context, cfg config.Config, root *logging.Logger) error {
	rt, err := newRuntime(cfg, paths, root)
	if err != nil {
		return err
	}
	defer rt.close()

	root.Info().
		Strs("types", rt.types.Load().Names()).
		Str("history", cfg.History.Store).
		Msg("agent runtime ready")

	srv := gateway.New(cfg.Gateway, gateway.Backend{
		Registry:   rt.registry,
		Dispatcher: rt.dispatcher,
		Status:     rt.status,
		History:    rt.history,
	}, root, gateway.WithHooks(rt.hooks))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		retention := time.Duration(cfg.History.RetentionHours) * time.Hour
		return store.RunPruner(gctx, rt.history, retention, store.PruneInterval, root)
	})
	g.Go(func() error {
		watchReload(gctx, rt, paths.Config, root)
		return nil
	})

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := rt.dispatcher.Drain(drainCtx); derr != nil {
		root.Warn().Interface("inFlight", rt.dispatcher.InFlightAll()).Msg("shutdown with runs still in flight")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchReload reloads the agent type catalog on SIGHUP.
func watchReload(ctx context.Context, rt *runtime, path string, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := rt.reload(path); err != nil {
				log.Error().Err(err).Str("path", path).Msg("reloading agent types failed")
				continue
			}
		}
	}
}

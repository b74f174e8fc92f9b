package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/soyeahso/agentos/internal/apiclient"
	"github.com/soyeahso/agentos/internal/catalog"
	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/status"
	"github.com/spf13/cobra"
)

func newTypesCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List agent types with their limits and current load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !local {
				types, err := apiclient.FromConfig(cfg).Types(cmd.Context())
				if err == nil {
					printTypes(out, types)
					return nil
				}
				if !unreachable(err) {
					return err
				}
				fmt.Fprintln(out, "gateway not reachable, showing configured types")
			}

			types, err := configuredTypes(cfg)
			if err != nil {
				return err
			}
			printTypes(out, types)
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "read types from the config file instead of the gateway")
	return cmd
}

// unreachable reports whether err is a transport failure rather than an
// API error returned by a live gateway.
func unreachable(err error) bool {
	var apiErr *apiclient.Error
	return !errors.As(err, &apiErr)
}

// configuredTypes builds the type listing from config with no load.
func configuredTypes(cfg config.Config) ([]status.TypeStatus, error) {
	cat, err := catalog.FromConfig(cfg.Agents)
	if err != nil {
		return nil, err
	}
	out := make([]status.TypeStatus, 0, cat.Len())
	for _, t := range cat.All() {
		out = append(out, status.TypeStatus{
			Name:          t.Name,
			Handler:       t.Handler,
			Enabled:       t.Enabled,
			MaxInstances:  t.MaxInstances,
			TimeoutMs:     t.TimeoutMs(),
			RetryAttempts: t.RetryAttempts,
			RetryDelayMs:  t.RetryDelayMs(),
			DefaultConfig: domain.RedactConfig(t.DefaultConfig),
			Available:     t.MaxInstances,
		})
	}
	return out, nil
}

func printTypes(w io.Writer, types []status.TypeStatus) {
	for _, t := range types {
		state := "enabled"
		if !t.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "  %-16s %-8s load=%d/%d timeout=%dms retries=%d delay=%dms handler=%s\n",
			t.Name, state, t.InFlight, t.MaxInstances, t.TimeoutMs, t.RetryAttempts, t.RetryDelayMs, t.Handler)
	}
}

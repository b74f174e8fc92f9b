package cli

import (
	"fmt"
	"sort"

	"github.com/soyeahso/agentos/internal/apiclient"
	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and, if a gateway is running, its load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b := version.Current()
			fmt.Fprintf(out, "agentos %s (commit %s)\n\n", b.Version, b.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
			fmt.Fprintf(out, "History: store=%s maxEntries=%d retention=%dh\n",
				cfg.History.Store, cfg.History.MaxEntries, cfg.History.RetentionHours)

			c := apiclient.FromConfig(cfg)
			ov, err := c.Overview(cmd.Context())
			switch {
			case err == nil:
				fmt.Fprintf(out, "Running: %s, %d agent(s)%s\n", c.BaseURL(), ov.Agents, formatByStatus(ov.ByStatus))
				fmt.Fprintln(out, "\nTypes:")
				printTypes(out, ov.Types)
			case unreachable(err):
				fmt.Fprintf(out, "Running: no gateway at %s\n", c.BaseURL())
				if types, terr := configuredTypes(cfg); terr == nil {
					fmt.Fprintln(out, "\nConfigured types:")
					printTypes(out, types)
				}
			default:
				fmt.Fprintf(out, "Running: %s (%v)\n", c.BaseURL(), err)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

// formatByStatus renders non-zero status counts in a stable order.
func formatByStatus(m map[domain.Status]int) string {
	keys := make([]string, 0, len(m))
	for k, n := range m {
		if n > 0 {
			keys = append(keys, string(k))
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	s := " ("
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", k, m[domain.Status(k)])
	}
	return s + ")"
}

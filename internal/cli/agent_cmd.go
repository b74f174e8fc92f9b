package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/agentos/internal/apiclient"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents on a running gateway",
	}

	cmd.AddCommand(newAgentCreateCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentRunCmd())
	cmd.AddCommand(newAgentStatusCmd())
	cmd.AddCommand(newAgentRunsCmd())
	return cmd
}

// gatewayClient returns a REST client for the configured gateway.
func gatewayClient() (*apiclient.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return apiclient.FromConfig(cfg), nil
}

func newAgentCreateCmd() *cobra.Command {
	var (
		typeName string
		cfgJSON  string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseObject("config-json", cfgJSON)
			if err != nil {
				return err
			}
			c, err := gatewayClient()
			if err != nil {
				return err
			}
			id, err := c.CreateAgent(cmd.Context(), args[0], typeName, overrides)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "generic", "agent type")
	cmd.Flags().StringVar(&cfgJSON, "config-json", "", "config overrides as a JSON object")
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := gatewayClient()
			if err != nil {
				return err
			}
			agents, err := c.ListAgents(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "  (no agents)")
				return nil
			}
			for _, a := range agents {
				fmt.Fprintf(out, "  %-36s %-20s %-16s %s\n", a.ID, a.Name, a.Type, a.Status)
			}
			return nil
		},
	}
}

func newAgentRunCmd() *cobra.Command {
	var (
		taskJSON string
		wait     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <agent-id>",
		Short: "Run a task on an agent and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := parseObject("task", taskJSON)
			if err != nil {
				return err
			}
			c, err := gatewayClient()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			for {
				res, err := c.Run(ctx, args[0], task)
				if err == nil {
					return printJSON(cmd.OutOrStdout(), res)
				}
				delay, ok := retryDelay(err, wait)
				if !ok {
					return err
				}
				wait -= delay
				log.Info().Dur("retryIn", delay).Msg("agent type at capacity, retrying")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
		},
	}

	cmd.Flags().StringVar(&taskJSON, "task", "{}", "task payload as a JSON object")
	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying capacity rejections for up to this long")
	return cmd
}

// retryDelay reports how long to back off before retrying err, given the
// remaining wait budget.
func retryDelay(err error, budget time.Duration) (time.Duration, bool) {
	if !apiclient.IsRetryable(err) || budget <= 0 {
		return 0, false
	}
	delay := time.Second
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		delay = apiErr.RetryAfter
	}
	if delay > budget {
		delay = budget
	}
	return delay, true
}

func newAgentStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent-id>",
		Short: "Show an agent's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := gatewayClient()
			if err != nil {
				return err
			}
			rep, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
}

func printReport(w io.Writer, rep domain.StatusReport) {
	fmt.Fprintf(w, "ID:       %s\n", rep.ID)
	fmt.Fprintf(w, "Name:     %s\n", rep.Name)
	fmt.Fprintf(w, "Type:     %s\n", rep.Type)
	fmt.Fprintf(w, "Status:   %s\n", rep.Status)
	fmt.Fprintf(w, "Runs:     %d\n", rep.Runs)
	if rep.LastRunAt != nil {
		fmt.Fprintf(w, "Last run: %s\n", rep.LastRunAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "Last run: never")
	}
	if rep.LastError != "" {
		fmt.Fprintf(w, "Error:    %s\n", rep.LastError)
	}
}

func newAgentRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <agent-id>",
		Short: "Show recent runs of an agent, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := gatewayClient()
			if err != nil {
				return err
			}
			runs, err := c.Runs(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "  (no runs)")
				return nil
			}
			for _, r := range runs {
				line := fmt.Sprintf("  %s  %-9s attempts=%d  %dms", r.StartedAt.Format(time.RFC3339), r.Status, r.Attempts, r.DurationMs)
				if r.ErrorCode != "" {
					line += "  " + r.ErrorCode
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	return cmd
}

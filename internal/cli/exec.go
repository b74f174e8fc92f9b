package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/domain"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/spf13/cobra"
)

func newExecCmd() *cobra.Command {
	var (
		typeName string
		name     string
		taskJSON string
		cfgJSON  string
	)

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run one task on a throwaway agent without a gateway",
		Long: "exec builds the dispatcher in-process, registers a single agent of the given " +
			"type, runs the task once, and prints the result as JSON. Run history is not kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := parseObject("task", taskJSON)
			if err != nil {
				return err
			}
			overrides, err := parseObject("config-json", cfgJSON)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.History.Store = "none"

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if name == "" {
				name = typeName
			}
			res, err := execOnce(ctx, cfg, log, typeName, name, overrides, task)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&typeName, "type", "t", "generic", "agent type")
	cmd.Flags().StringVar(&name, "name", "", "agent name (defaults to the type)")
	cmd.Flags().StringVar(&taskJSON, "task", "{}", "task payload as a JSON object")
	cmd.Flags().StringVar(&cfgJSON, "config-json", "", "agent config overrides as a JSON object")

	return cmd
}

// execOnce registers one agent on a fresh runtime and runs task on it.
func execOnce(ctx context.Context, cfg config.Config, log *logging.Logger, typeName, name string, overrides, task map[string]any) (*domain.RunResult, error) {
	rt, err := newRuntime(cfg, config.Paths{}, log)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	id, err := rt.registry.Register(ctx, name, typeName, overrides)
	if err != nil {
		return nil, err
	}
	return rt.dispatcher.Run(ctx, id, domain.Task(task))
}

// parseObject decodes a JSON object flag. An empty string yields nil.
func parseObject(flag, s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("--%s must be a JSON object: %w", flag, err)
	}
	return out, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

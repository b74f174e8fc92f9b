// Package cli implements the agentos command tree.
package cli

import (
	"github.com/soyeahso/agentos/internal/config"
	"github.com/soyeahso/agentos/internal/logging"
	"github.com/soyeahso/agentos/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// set by PersistentPreRunE
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentos",
		Short: "agentos: typed background agents with capacity-limited dispatch",
		Long: "agentos registers named agents of declared types and runs tasks on them " +
			"under per-type concurrency limits, timeouts, and retry policy.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(cmd.ErrOrStderr(), level)
			return nil
		},
		Version:       version.Current().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("agentos {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agentos/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newTypesCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads the config file and applies the --log-level flag.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

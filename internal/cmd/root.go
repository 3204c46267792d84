// Package cmd wires the CLI surface: the hook entry point invoked by the
// assistant plus standalone subcommands for running, inspecting, and
// unblocking the engine.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/log"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Task orchestration for AI-assisted coding sessions",
	Long: `maestro sits between an interactive AI assistant and a band of
LLM-backed worker agents. On each inbound event it decides whether running
the band is worth the cost, executes the selected agents in phases under
per-agent locks, and appends their findings after the untouched event
payload.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := log.DefaultConfig()
		if flagVerbose {
			cfg = log.DevelopmentConfig()
		}
		log.SetDefaultLogger(log.New(cfg))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default <dir>/.maestro/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig resolves configuration for a watched directory, honoring the
// --config override.
func loadConfig(workDir string) (*config.Config, error) {
	if flagConfig != "" {
		return config.LoadFile(flagConfig)
	}
	return config.Load(config.CacheRoot(workDir))
}

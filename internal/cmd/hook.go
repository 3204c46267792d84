package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/maestro/internal/hook"
	"github.com/felixgeelhaar/maestro/internal/log"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Process one assistant event from stdin",
	Long: `hook reads a single event payload from stdin, forwards it to stdout
unchanged, and appends the band report when the conductor decides a run is
worth it. This is the command the assistant's hook configuration invokes;
it exits 0 on every decision, including skip.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}

		workDir, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(workDir)
		if err != nil {
			return err
		}

		h := hook.New(cfg, cmd.OutOrStdout(), log.DefaultLogger())
		return h.Handle(cmd.Context(), raw)
	},
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

package cmd

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/snapshot"
)

var snapshotDir string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture and print the current project snapshot",
	Long: `snapshot walks the directory, updates the fingerprint table, and
prints the resulting state as JSON. Useful for inspecting what the
conductor would see.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := filepath.Abs(snapshotDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(workDir)
		if err != nil {
			return err
		}

		store := snapshot.NewStore(workDir, config.CacheRoot(workDir), cfg.Cache, cfg.Sizing)
		snap, err := store.Snapshot(cmd.Context())
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotDir, "dir", ".", "directory to snapshot")
	rootCmd.AddCommand(snapshotCmd)
}

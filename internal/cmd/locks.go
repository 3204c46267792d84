package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/lock"
	"github.com/felixgeelhaar/maestro/internal/log"
)

var (
	locksDir   string
	locksSweep bool
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect or sweep agent locks",
	Long: `locks lists the lock markers for a directory. With --sweep it also
reclaims markers older than the staleness threshold, which unblocks a
project after a crashed run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := filepath.Abs(locksDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(workDir)
		if err != nil {
			return err
		}

		mgr, err := lock.NewManager(filepath.Join(config.CacheRoot(workDir), "locks"), cfg.Lock,
			lock.WithLogger(log.DefaultLogger()))
		if err != nil {
			return err
		}

		if locksSweep {
			reclaimed := mgr.Sweep()
			fmt.Fprintf(cmd.OutOrStdout(), "reclaimed %d stale lock(s)\n", reclaimed)
		}

		markers := mgr.List()
		if len(markers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no locks held")
			return nil
		}

		resources := make([]string, 0, len(markers))
		for resource := range markers {
			resources = append(resources, resource)
		}
		sort.Strings(resources)

		for _, resource := range resources {
			m := markers[resource]
			age := time.Since(m.AcquiredAt).Round(time.Second)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tpid=%d host=%s age=%s\n", resource, m.PID, m.Host, age)
		}
		return nil
	},
}

func init() {
	locksCmd.Flags().StringVar(&locksDir, "dir", ".", "directory whose locks to inspect")
	locksCmd.Flags().BoolVar(&locksSweep, "sweep", false, "reclaim stale locks")
	rootCmd.AddCommand(locksCmd)
}

package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/maestro/internal/agent"
	"github.com/felixgeelhaar/maestro/internal/band"
	"github.com/felixgeelhaar/maestro/internal/conductor"
	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/lock"
	"github.com/felixgeelhaar/maestro/internal/log"
	"github.com/felixgeelhaar/maestro/internal/provider"
	"github.com/felixgeelhaar/maestro/internal/snapshot"
)

var (
	runDir     string
	runRequest string
	runTasks   []string
	runTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the band directly, outside any hook",
	Long: `run executes the band against a directory without an inbound event.
By default the conductor decides which agents run; --tasks bypasses it and
runs exactly the named agents. A skip decision is a success, not an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.DefaultLogger()

		workDir, err := filepath.Abs(runDir)
		if err != nil {
			return err
		}
		cfg, err := loadConfig(workDir)
		if err != nil {
			return err
		}

		cacheRoot := config.CacheRoot(workDir)
		store := snapshot.NewStore(workDir, cacheRoot, cfg.Cache, cfg.Sizing)
		snap, err := store.Snapshot(cmd.Context())
		if err != nil {
			return err
		}

		client := provider.NewCLIClient(cfg.Provider, logger)
		roster := conductor.DefaultRoster()

		var decision conductor.Decision
		if len(runTasks) > 0 {
			decision = conductor.Decision{
				Run:      true,
				Tasks:    runTasks,
				Timeout:  runTimeout,
				Priority: conductor.PriorityMedium,
				Reason:   "explicit task selection",
			}
			if decision.Timeout <= 0 {
				decision.Timeout = conductor.TimeoutFor(snap, cfg.Sizing)
			}
		} else {
			var strategy conductor.Strategy
			if client.IsAvailable() {
				strategy = conductor.NewModelStrategy(client, cfg.Conductor.Model, roster, cfg.Sizing)
			} else {
				strategy = conductor.NewHeuristic(roster, cfg.Sizing)
			}
			c := conductor.New(strategy, roster, cfg.Sizing, cfg.Conductor.DecisionTimeout, logger)
			decision = c.Decide(cmd.Context(), conductor.Request{
				Prompt:   runRequest,
				Snapshot: snap,
				LastRun:  store.LoadMeta().LastRunAt,
			})
		}

		if !decision.Run {
			fmt.Fprintf(cmd.OutOrStdout(), "skip: %s\n", decision.Reason)
			return nil
		}

		locks, err := lock.NewManager(filepath.Join(cacheRoot, "locks"), cfg.Lock, lock.WithLogger(logger))
		if err != nil {
			return err
		}

		registry := agent.NewRegistry(client, cfg.Provider, logger)
		tasks := registry.Tasks(decision.Tasks, agent.KindSynthesis, decision.Timeout)
		if len(tasks) == 0 {
			return fmt.Errorf("no runnable agents among %v", decision.Tasks)
		}

		results := band.NewRunner(locks, logger).Run(cmd.Context(), band.GroupByPhase(tasks), band.Input{
			Prompt:  runRequest,
			WorkDir: workDir,
			Budget:  decision.Timeout,
		})

		report := band.RenderReport(results, band.ReportOptions{
			RunID:  uuid.NewString()[:8],
			Reason: decision.Reason,
			Titles: agent.Titles(),
			Order:  agent.Order(),
		})
		fmt.Fprintln(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDir, "dir", ".", "directory to analyze")
	runCmd.Flags().StringVar(&runRequest, "request", "", "request text the band works on")
	runCmd.Flags().StringSliceVar(&runTasks, "tasks", nil, "run exactly these agents, bypassing the conductor")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-task budget (default: adaptive)")
	_ = runCmd.MarkFlagRequired("request")
	rootCmd.AddCommand(runCmd)
}

package band

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/maestro/internal/lock"
	"github.com/felixgeelhaar/maestro/internal/log"
)

// Runner executes ordered phases of independent tasks: concurrent within a
// phase, sequential across phases. A failing or overrunning task never
// aborts its siblings or later phases; it just becomes a TaskResult. Total
// wall-clock time is the sum over phases of each phase's slowest task.
type Runner struct {
	locks  *lock.Manager
	logger *log.Logger
}

// NewRunner creates a phased task runner. The lock manager guards each
// task against overlapping invocations; it may be nil for unguarded runs.
func NewRunner(locks *lock.Manager, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Runner{locks: locks, logger: logger}
}

// Input is the per-run execution input shared by all tasks.
type Input struct {
	Prompt         string
	WorkDir        string
	TranscriptPath string

	// Budget is the per-task budget from the decision layer. Zero means
	// each task falls back to its own default timeout.
	Budget time.Duration
}

// Run executes the phases in order and returns one result slice per phase,
// index-aligned with the input. It never returns an error: every failure
// mode is captured in a TaskResult.
func (r *Runner) Run(ctx context.Context, phases [][]Task, input Input) [][]TaskResult {
	results := make([][]TaskResult, len(phases))
	prior := make(map[string]TaskResult)

	for i, phase := range phases {
		results[i] = r.runPhase(ctx, phase, input, prior)

		// Finalize this phase's results before the next phase starts.
		for _, res := range results[i] {
			prior[res.TaskID] = res
		}
	}
	return results
}

// runPhase submits every task of a phase to a pool sized to the phase.
func (r *Runner) runPhase(ctx context.Context, phase []Task, input Input, prior map[string]TaskResult) []TaskResult {
	results := make([]TaskResult, len(phase))

	g := new(errgroup.Group)
	g.SetLimit(len(phase))
	for i, task := range phase {
		g.Go(func() error {
			results[i] = r.runTask(ctx, task, input, prior)
			return nil
		})
	}
	// Workers never return errors; Wait is purely a completion barrier.
	_ = g.Wait()

	return results
}

// runTask runs a single task under its lock and budget.
func (r *Runner) runTask(ctx context.Context, task Task, input Input, prior map[string]TaskResult) TaskResult {
	if r.locks != nil {
		held := r.locks.Acquire(ctx, task.ID, false)
		if held == nil {
			r.logger.Info("task already running elsewhere, skipping", "task", task.ID)
			return TaskResult{TaskID: task.ID, Status: StatusSkippedLocked}
		}
		defer r.locks.Release(held)
	}

	budget := input.Budget
	if budget <= 0 {
		budget = task.Timeout
	}

	taskCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	tc := &TaskContext{
		Prompt:         input.Prompt,
		WorkDir:        input.WorkDir,
		TranscriptPath: input.TranscriptPath,
		Prior:          prior,
	}

	type outcome struct {
		output string
		err    error
	}

	started := time.Now()
	done := make(chan outcome, 1)
	go func() {
		output, err := task.Run(taskCtx, tc)
		done <- outcome{output: output, err: err}
	}()

	select {
	case o := <-done:
		elapsed := time.Since(started)
		if o.err != nil {
			r.logger.WithError(o.err).Warn("task failed", "task", task.ID, "elapsed", elapsed.Round(time.Millisecond))
			return TaskResult{TaskID: task.ID, Status: StatusError, Error: o.err.Error(), Elapsed: elapsed}
		}
		r.logger.Info("task completed", "task", task.ID, "elapsed", elapsed.Round(time.Millisecond))
		return TaskResult{TaskID: task.ID, Status: StatusOK, Output: o.output, Elapsed: elapsed}
	case <-taskCtx.Done():
		// Abandon waiting. The goroutine observes taskCtx and terminates
		// best-effort; the buffered channel lets it exit either way.
		elapsed := time.Since(started)
		r.logger.Warn("task exceeded budget", "task", task.ID, "budget", budget)
		return TaskResult{TaskID: task.ID, Status: StatusTimeout, Elapsed: elapsed}
	}
}

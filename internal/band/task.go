// Package band defines the orchestrated worker tasks and the phased
// executor that runs them.
package band

import (
	"context"
	"time"
)

// Status is the terminal state of one task execution.
type Status string

// Task statuses.
const (
	// StatusOK means the task produced output.
	StatusOK Status = "ok"
	// StatusTimeout means the task exceeded its budget and was abandoned.
	StatusTimeout Status = "timeout"
	// StatusError means the task returned an error.
	StatusError Status = "error"
	// StatusSkippedLocked means another invocation held the task's lock.
	StatusSkippedLocked Status = "skipped_locked"
)

// TaskContext is the read-only input handed to a task function.
type TaskContext struct {
	// Prompt is the free-text request from the inbound event.
	Prompt string

	// WorkDir is the watched working directory.
	WorkDir string

	// TranscriptPath optionally references the conversation history.
	TranscriptPath string

	// Prior holds the finalized results of all earlier phases, keyed by
	// task ID. It is complete before any task of the current phase starts.
	Prior map[string]TaskResult
}

// TaskFunc performs one unit of delegated work and returns its text output.
type TaskFunc func(ctx context.Context, tc *TaskContext) (string, error)

// Task is one named unit of delegated work.
type Task struct {
	// ID names the task and its lock resource.
	ID string

	// Phase is the ordered stage this task belongs to.
	Phase int

	// Timeout is the task's default budget, used when the run has no
	// decision-provided budget.
	Timeout time.Duration

	// Run is the task function.
	Run TaskFunc
}

// TaskResult is the immutable outcome of one task execution.
type TaskResult struct {
	TaskID  string        `json:"task_id"`
	Status  Status        `json:"status"`
	Output  string        `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ElapsedSeconds returns the elapsed time in whole-ish seconds for reports.
func (r TaskResult) ElapsedSeconds() float64 {
	return r.Elapsed.Seconds()
}

// GroupByPhase orders tasks into ascending phases, preserving the given
// order within a phase.
func GroupByPhase(tasks []Task) [][]Task {
	if len(tasks) == 0 {
		return nil
	}

	byPhase := make(map[int][]Task)
	minPhase, maxPhase := tasks[0].Phase, tasks[0].Phase
	for _, t := range tasks {
		byPhase[t.Phase] = append(byPhase[t.Phase], t)
		if t.Phase < minPhase {
			minPhase = t.Phase
		}
		if t.Phase > maxPhase {
			maxPhase = t.Phase
		}
	}

	var phases [][]Task
	for p := minPhase; p <= maxPhase; p++ {
		if group, ok := byPhase[p]; ok {
			phases = append(phases, group)
		}
	}
	return phases
}

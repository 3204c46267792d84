package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/maestro/internal/band"
	"github.com/felixgeelhaar/maestro/internal/config"
	"github.com/felixgeelhaar/maestro/internal/provider"
)

func newTestRegistry(t *testing.T, client provider.Client) *Registry {
	t.Helper()
	return NewRegistry(client, config.Default().Provider, nil)
}

func TestIDsByKind(t *testing.T) {
	assert.Equal(t, []string{"john", "george", "pete", "paul", "ringo"}, IDs(KindSynthesis))
	assert.Equal(t, []string{"john", "george", "pete", "marie", "gilfoyle"}, IDs(KindMaintenance))
}

func TestTasksFiltersUnknownAndWrongKind(t *testing.T) {
	reg := newTestRegistry(t, provider.NewMockClient("out"))

	tasks := reg.Tasks([]string{"john", "paul", "nobody", "gilfoyle"}, KindSynthesis, time.Minute)

	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	// paul serves synthesis only, gilfoyle maintenance only; nobody is unknown.
	assert.Equal(t, []string{"john", "paul"}, ids)
	for _, task := range tasks {
		assert.Equal(t, time.Minute, task.Timeout)
	}
}

func TestSynthesisTasksAreTwoPhased(t *testing.T) {
	reg := newTestRegistry(t, provider.NewMockClient("out"))

	tasks := reg.Tasks(IDs(KindSynthesis), KindSynthesis, time.Minute)
	phases := band.GroupByPhase(tasks)

	require.Len(t, phases, 2)
	assert.Len(t, phases[0], 4)
	require.Len(t, phases[1], 1)
	assert.Equal(t, "ringo", phases[1][0].ID)
}

func TestTaskRendersPromptAndModel(t *testing.T) {
	mock := provider.NewMockClient("a wild idea")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"paul"}, KindSynthesis, time.Minute)
	require.Len(t, tasks, 1)

	out, err := tasks[0].Run(context.Background(), &band.TaskContext{
		Prompt:  "refactor the storage layer",
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "a wild idea", out)

	require.Equal(t, 1, mock.CallCount())
	assert.Equal(t, "opus", mock.Calls[0].Model)
	assert.Contains(t, mock.Calls[0].Prompt, "refactor the storage layer")
}

func TestDefaultModelUsedWhenNoOverride(t *testing.T) {
	mock := provider.NewMockClient("structure notes")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"john"}, KindSynthesis, time.Minute)
	require.Len(t, tasks, 1)

	_, err := tasks[0].Run(context.Background(), &band.TaskContext{Prompt: "hi", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "sonnet", mock.Calls[0].Model)
}

func TestRingoSeesPriorOutputs(t *testing.T) {
	mock := provider.NewMockClient("synthesized")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"ringo"}, KindSynthesis, time.Minute)
	require.Len(t, tasks, 1)

	_, err := tasks[0].Run(context.Background(), &band.TaskContext{
		Prompt:  "update the docs",
		WorkDir: t.TempDir(),
		Prior: map[string]band.TaskResult{
			"john":   {TaskID: "john", Status: band.StatusOK, Output: "three new packages"},
			"george": {TaskID: "george", Status: band.StatusTimeout},
			"pete":   {TaskID: "pete", Status: band.StatusOK, Output: "   "},
		},
	})
	require.NoError(t, err)

	prompt := mock.Calls[0].Prompt
	assert.Contains(t, prompt, "three new packages")
	assert.Contains(t, prompt, "John (Structure)")
	// Failed or empty contributions stay out of the synthesis prompt.
	assert.NotContains(t, prompt, "George (Narrative)")
	assert.NotContains(t, prompt, "Pete (Technical)")
}

func TestRingoWithNoPriorOutputs(t *testing.T) {
	mock := provider.NewMockClient("synthesized")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"ringo"}, KindSynthesis, time.Minute)
	_, err := tasks[0].Run(context.Background(), &band.TaskContext{Prompt: "hi", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Contains(t, mock.Calls[0].Prompt, "[none this turn]")
}

func TestGeorgeReadsTranscriptTail(t *testing.T) {
	dir := t.TempDir()
	transcript := filepath.Join(dir, "transcript.jsonl")
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", 10))
	}
	lines = append(lines, "the final exchange")
	require.NoError(t, os.WriteFile(transcript, []byte(strings.Join(lines, "\n")), 0o644))

	mock := provider.NewMockClient("narrative")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"george"}, KindSynthesis, time.Minute)
	_, err := tasks[0].Run(context.Background(), &band.TaskContext{
		Prompt:         "summarize",
		WorkDir:        dir,
		TranscriptPath: transcript,
	})
	require.NoError(t, err)
	assert.Contains(t, mock.Calls[0].Prompt, "the final exchange")
}

func TestMissingTranscriptIsPlaceholder(t *testing.T) {
	assert.Equal(t, "[No transcript available]", transcriptTail(""))
	assert.Equal(t, "[No transcript available]", transcriptTail(filepath.Join(t.TempDir(), "nope.jsonl")))
}

func TestExtractFencedCode(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"no fence", "just words", "[No code]"},
		{"plain fence", "look:\n```\nfoo()\n```\ndone", "foo()"},
		{"language tag", "look:\n```go\nbar()\n```", "bar()"},
		{"empty fence", "```\n```", "[No code]"},
		{"unclosed fence", "```go\nbaz()", "[No code]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractFencedCode(tt.prompt))
		})
	}
}

func TestGilfoyleScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("junk"), 0o644))

	out, err := buildHealthScan(context.Background(), &band.TaskContext{WorkDir: dir})
	require.NoError(t, err)
	assert.Contains(t, out, "go.mod")
	assert.Contains(t, out, "scratch.tmp")
}

func TestGilfoyleCleanProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte("{}"), 0o644))

	out, err := buildHealthScan(context.Background(), &band.TaskContext{WorkDir: dir})
	require.NoError(t, err)
	assert.Contains(t, out, "package.json")
	assert.Contains(t, out, "No leftover temporary files")
}

func TestGilfoyleNeverCallsProvider(t *testing.T) {
	mock := provider.NewMockClient("should not be used")
	reg := newTestRegistry(t, mock)

	tasks := reg.Tasks([]string{"gilfoyle"}, KindMaintenance, time.Minute)
	require.Len(t, tasks, 1)

	_, err := tasks[0].Run(context.Background(), &band.TaskContext{WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, mock.CallCount())
}

func TestTitlesCoverEveryAgent(t *testing.T) {
	titles := Titles()
	for _, id := range Order() {
		assert.NotEmpty(t, titles[id], "title for %s", id)
	}
}

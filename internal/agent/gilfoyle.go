package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/maestro/internal/band"
)

// manifestFiles are build manifests whose presence anchors the health scan.
var manifestFiles = []string{
	"go.mod",
	"package.json",
	"pyproject.toml",
	"requirements.txt",
	"Cargo.toml",
	"Makefile",
}

// junkSuffixes flag files that should not linger in a working tree.
var junkSuffixes = []string{".tmp", ".orig", ".rej", ".swp", "~"}

// buildHealthScan is gilfoyle: a deterministic local inspection of the
// project's build surface. It never calls the provider, so it costs nothing
// and cannot time out on model latency.
func buildHealthScan(ctx context.Context, tc *band.TaskContext) (string, error) {
	if tc.WorkDir == "" {
		return "", fmt.Errorf("build health scan: no working directory")
	}

	var manifests []string
	for _, name := range manifestFiles {
		if _, err := os.Stat(filepath.Join(tc.WorkDir, name)); err == nil {
			manifests = append(manifests, name)
		}
	}

	var junk []string
	entries, err := os.ReadDir(tc.WorkDir)
	if err != nil {
		return "", fmt.Errorf("build health scan: %w", err)
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if entry.IsDir() {
			continue
		}
		for _, suffix := range junkSuffixes {
			if strings.HasSuffix(entry.Name(), suffix) {
				junk = append(junk, entry.Name())
				break
			}
		}
	}

	var b strings.Builder
	if len(manifests) == 0 {
		b.WriteString("No build manifest found at the project root.\n")
	} else {
		fmt.Fprintf(&b, "Build manifests present: %s.\n", strings.Join(manifests, ", "))
	}
	if len(junk) > 0 {
		fmt.Fprintf(&b, "Leftover temporary files at the root: %s.\n", strings.Join(junk, ", "))
	} else {
		b.WriteString("No leftover temporary files at the root.\n")
	}
	return strings.TrimSpace(b.String()), nil
}

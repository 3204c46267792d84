package band

import (
	"fmt"
	"strings"
)

// ReportOptions controls rendering of the appended band report.
type ReportOptions struct {
	// RunID identifies this orchestration run.
	RunID string

	// Reason is the conductor's stated reason for running.
	Reason string

	// Titles maps task IDs to display titles, e.g. "John (Structure)".
	Titles map[string]string

	// Order lists task IDs in stable display order. Tasks without a
	// result are silently omitted.
	Order []string
}

// RenderReport formats the per-run results as the text block appended
// after the passthrough payload. It returns "" when nothing ran.
func RenderReport(results [][]TaskResult, opts ReportOptions) string {
	flat := make(map[string]TaskResult)
	for _, phase := range results {
		for _, res := range phase {
			flat[res.TaskID] = res
		}
	}
	if len(flat) == 0 {
		return ""
	}

	var ran, skipped []string
	for _, id := range opts.Order {
		res, ok := flat[id]
		if !ok {
			continue
		}
		if res.Status == StatusSkippedLocked {
			skipped = append(skipped, id)
		} else {
			ran = append(ran, id)
		}
	}

	var b strings.Builder
	b.WriteString("<the-band>\n\n")
	if opts.Reason != "" {
		fmt.Fprintf(&b, "*Conductor: %s*\n", opts.Reason)
	}
	if opts.RunID != "" {
		fmt.Fprintf(&b, "*Run: %s*\n", opts.RunID)
	}
	if len(skipped) > 0 {
		fmt.Fprintf(&b, "*Note: %s already running from a previous turn*\n", strings.Join(skipped, ", "))
	}
	if len(ran) > 0 {
		fmt.Fprintf(&b, "*Running: %s*\n", strings.Join(ran, ", "))
	}
	b.WriteString("\n")

	for _, id := range opts.Order {
		res, ok := flat[id]
		if !ok {
			continue
		}

		title := opts.Titles[id]
		if title == "" {
			title = id
		}

		switch res.Status {
		case StatusOK:
			if strings.TrimSpace(res.Output) == "" {
				continue
			}
			fmt.Fprintf(&b, "**%s:**\n%s\n\n", title, strings.TrimSpace(res.Output))
		case StatusTimeout:
			fmt.Fprintf(&b, "**%s:** [timed out after %.0fs]\n\n", title, res.ElapsedSeconds())
		case StatusError:
			fmt.Fprintf(&b, "**%s:** [error: %s]\n\n", title, res.Error)
		case StatusSkippedLocked:
			// Already noted in the header.
		}
	}

	b.WriteString("</the-band>\n")
	return b.String()
}

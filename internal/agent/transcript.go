package agent

import (
	"os"
	"strings"
)

// transcriptTailLines bounds how much conversation history goes into a prompt.
const (
	transcriptTailLines = 40
	transcriptMaxBytes  = 256 * 1024
)

// transcriptTail returns the last lines of the conversation transcript, or a
// placeholder when the transcript is missing or unreadable. Agents treat the
// transcript as optional context, never a hard requirement.
func transcriptTail(path string) string {
	if path == "" {
		return "[No transcript available]"
	}

	info, err := os.Stat(path)
	if err != nil {
		return "[No transcript available]"
	}

	f, err := os.Open(path)
	if err != nil {
		return "[No transcript available]"
	}
	defer f.Close()

	// Only the tail matters; seek past the bulk of large transcripts.
	if info.Size() > transcriptMaxBytes {
		if _, err := f.Seek(info.Size()-transcriptMaxBytes, 0); err != nil {
			return "[No transcript available]"
		}
	}

	buf := make([]byte, transcriptMaxBytes)
	n, _ := f.Read(buf)
	if n == 0 {
		return "[No transcript available]"
	}

	lines := strings.Split(strings.TrimRight(string(buf[:n]), "\n"), "\n")
	if len(lines) > transcriptTailLines {
		lines = lines[len(lines)-transcriptTailLines:]
	}
	return strings.Join(lines, "\n")
}

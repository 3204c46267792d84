package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	Version = "1.2.3"
	Commit = "abc123def456789"
	Date = "2026-01-01T00:00:00Z"

	info := GetInfo()
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, "1.2.3", info.Short())

	// Long form truncates the commit and names the product.
	s := info.String()
	assert.Contains(t, s, "Maestro 1.2.3")
	assert.Contains(t, s, "abc123de")
	assert.NotContains(t, s, "abc123def")
}

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/maestro/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(Config{Level: level, Format: format, Output: NewOutput(&buf)})
	return logger, &buf
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, FormatText)

	logger.Info("not shown")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Contains(t, out, "shown")
}

func TestWithErrorEnrichesCodedErrors(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)

	err := errors.New(errors.ErrCodeProviderTimeout, "provider call exceeded its budget").
		WithSuggestion("raise the per-task timeout")
	logger.WithError(err).Warn("task failed")

	out := buf.String()
	assert.Contains(t, out, "PROVIDER-003")
	assert.Contains(t, out, "provider call exceeded its budget")
	assert.Contains(t, out, "raise the per-task timeout")
}

func TestWithErrorPlainError(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatText)

	logger.WithError(assert.AnError).Info("something happened")
	assert.Contains(t, buf.String(), assert.AnError.Error())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" Warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("loud"))
}

func TestDefaultLoggerIsLazilyInitialized(t *testing.T) {
	SetDefaultLogger(nil)
	assert.NotNil(t, DefaultLogger())
}

package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Lock errors (LOCK-001 to LOCK-099)
	ErrCodeLockHeld         ErrorCode = "LOCK-001"
	ErrCodeLockWriteFailed  ErrorCode = "LOCK-002"
	ErrCodeLockSweepFailed  ErrorCode = "LOCK-003"
	ErrCodeLockGuardFailed  ErrorCode = "LOCK-004"
	ErrCodeLockNotHeld      ErrorCode = "LOCK-005"

	// Snapshot cache errors (CACHE-001 to CACHE-099)
	ErrCodeCacheTableCorrupt ErrorCode = "CACHE-001"
	ErrCodeCacheWriteFailed  ErrorCode = "CACHE-002"
	ErrCodeCacheWalkFailed   ErrorCode = "CACHE-003"
	ErrCodeCacheRootMissing  ErrorCode = "CACHE-004"

	// Conductor errors (COND-001 to COND-099)
	ErrCodeConductorTimeout   ErrorCode = "COND-001"
	ErrCodeConductorMalformed ErrorCode = "COND-002"
	ErrCodeConductorNoDecider ErrorCode = "COND-003"

	// Band execution errors (BAND-001 to BAND-099)
	ErrCodeTaskTimeout ErrorCode = "BAND-001"
	ErrCodeTaskFailed  ErrorCode = "BAND-002"
	ErrCodeTaskUnknown ErrorCode = "BAND-003"

	// Provider errors (PROVIDER-001 to PROVIDER-099)
	ErrCodeProviderNotFound ErrorCode = "PROVIDER-001"
	ErrCodeProviderFailed   ErrorCode = "PROVIDER-002"
	ErrCodeProviderTimeout  ErrorCode = "PROVIDER-003"

	// Hook errors (HOOK-001 to HOOK-099)
	ErrCodeHookMalformedEvent ErrorCode = "HOOK-001"
	ErrCodeHookUnknownEvent   ErrorCode = "HOOK-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
	ErrCodeFileUnmarshal   ErrorCode = "IO-005"
	ErrCodeFileMarshal     ErrorCode = "IO-006"
)

// MaestroError represents an enhanced error with code, suggestions, and documentation
type MaestroError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *MaestroError) Error() string {
	var b strings.Builder

	// Error code and message
	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	// Add cause if present
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	// Add suggestions
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	// Add documentation link
	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *MaestroError) Unwrap() error {
	return e.Cause
}

// New creates a new MaestroError
func New(code ErrorCode, message string) *MaestroError {
	return &MaestroError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new MaestroError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *MaestroError {
	return &MaestroError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *MaestroError) WithSuggestion(suggestion string) *MaestroError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *MaestroError) WithSuggestions(suggestions ...string) *MaestroError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *MaestroError) WithDocs(url string) *MaestroError {
	e.DocsURL = url
	return e
}

// Common error constructors for frequently used errors

// NewProviderNotFoundError creates a provider executable not found error
func NewProviderNotFoundError(path string) *MaestroError {
	return New(ErrCodeProviderNotFound, fmt.Sprintf("reasoning provider executable not found: %s", path)).
		WithSuggestion("Install the provider CLI or adjust provider.path in config.yaml").
		WithSuggestion("Run 'maestro run --dir . --request \"...\"' with --tasks to bypass the conductor")
}

// NewCacheCorruptError creates a fingerprint table corruption error
func NewCacheCorruptError(path string, cause error) *MaestroError {
	return Wrap(ErrCodeCacheTableCorrupt, fmt.Sprintf("fingerprint table unreadable: %s", path), cause).
		WithSuggestion("The table will be rebuilt from a full rescan").
		WithSuggestion("Delete the cache directory if the problem persists")
}

// NewLockWriteError creates a lock marker write error
func NewLockWriteError(resource string, cause error) *MaestroError {
	return Wrap(ErrCodeLockWriteFailed, fmt.Sprintf("failed to write lock marker for %q", resource), cause).
		WithSuggestion("Check permissions on the lock directory")
}

// NewMalformedEventError creates a malformed hook event error
func NewMalformedEventError(cause error) *MaestroError {
	return Wrap(ErrCodeHookMalformedEvent, "inbound event payload is not valid JSON", cause).
		WithSuggestion("The payload was forwarded unchanged; no work was performed")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *MaestroError {
	return Wrap(ErrCodeFileUnmarshal, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion("Check the file syntax and format").
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}

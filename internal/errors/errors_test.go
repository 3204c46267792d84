package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeCacheRootMissing, "watched directory does not exist")
	assert.Equal(t, "[CACHE-004] watched directory does not exist", err.Error())
}

func TestWrapIncludesCause(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Wrap(ErrCodeLockWriteFailed, "failed to write lock marker", cause)

	assert.Contains(t, err.Error(), "LOCK-002")
	assert.Contains(t, err.Error(), "permission denied")
	assert.True(t, stderrors.Is(err, cause))
}

func TestSuggestionsAndDocsRendered(t *testing.T) {
	err := New(ErrCodeProviderNotFound, "provider missing").
		WithSuggestion("install the provider CLI").
		WithDocs("https://example.com/docs/provider")

	msg := err.Error()
	assert.Contains(t, msg, "Suggestions:")
	assert.Contains(t, msg, "install the provider CLI")
	assert.Contains(t, msg, "https://example.com/docs/provider")
}

func TestConstructorsCarryCodes(t *testing.T) {
	require.Equal(t, ErrCodeProviderNotFound, NewProviderNotFoundError("claude").Code)
	require.Equal(t, ErrCodeHookMalformedEvent, NewMalformedEventError(stderrors.New("bad json")).Code)
	require.Equal(t, ErrCodeCacheTableCorrupt, NewCacheCorruptError("/x/fingerprints.json", stderrors.New("eof")).Code)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	err := ConfigErrorf("cannot combine %s and %s", "from_commit", "from_tag")
	wrapped := fmt.Errorf("traverse: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrConfiguration))
	assert.False(t, stderrors.Is(wrapped, ErrBackend))
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrorTypeConfig, GetType(err))
}

func TestBackendErrorUnwrap(t *testing.T) {
	cause := stderrors.New("exit status 128")
	err := BackendErrorf(cause, "git log failed in %s", "/tmp/repo")

	assert.Equal(t, "git log failed in /tmp/repo: exit status 128", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, SeverityHigh, GetSeverity(err))
}

func TestDecodeErrorIsRecoverable(t *testing.T) {
	err := DecodeError("binary content").WithContext("path", "logo.png")

	assert.False(t, IsFatal(err))
	assert.Contains(t, err.DetailedString(), "[LOW] [DECODE] binary content")
	assert.Contains(t, err.DetailedString(), "path: logo.png")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeBackend, SeverityHigh, "nothing"))
	assert.False(t, IsFatal(nil))
	assert.Equal(t, SeverityMedium, GetSeverity(stderrors.New("plain")))
}

func TestHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("open repository: %w", BackendErrorf(nil, "revision %s not found", "v9"))

	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrorTypeBackend, GetType(err))
	assert.Equal(t, SeverityHigh, GetSeverity(err))
	assert.Equal(t, ErrorTypeInternal, GetType(stderrors.New("plain")))
}

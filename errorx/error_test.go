package errorx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	err := NewConfig(ErrBodyReplayRequired, WithComponent(ComponentMiddleware))

	assert.True(t, IsConfig(err))
	assert.False(t, IsProtocol(err))
	assert.True(t, HasCode(err, ErrBodyReplayRequired))
	assert.Equal(t, ComponentMiddleware, ComponentOf(err))
	assert.Contains(t, err.Error(), "middleware: code=1002")
}

func TestWrapKeepsExisting(t *testing.T) {
	orig := New(ErrExport, WithComponent(ComponentExporter))
	wrapped := fmt.Errorf("flush: %w", orig)

	got := Wrap(wrapped, ErrDefault, WithField("batch", 3))
	require.Same(t, orig, got)
	assert.Equal(t, 3, got.Fields["batch"])
}

func TestWrapPlainError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrHTTPCall, WithMessagef("POST %s", "/v1/traces"))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "POST /v1/traces", err.Message)
	assert.Nil(t, Wrap(nil, ErrHTTPCall))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load: %w", NewConfig(ErrInvalidConfig, WithMessage("bad sampler")))
	assert.ErrorIs(t, err, New(ErrInvalidConfig))
	assert.NotErrorIs(t, err, New(ErrExport))
	assert.Equal(t, ComponentDefault, ComponentOf(errors.New("plain")))
}

package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCallSite(t *testing.T) {
	err := New("bad %s", "thing")
	assert.Regexp(t, `^\[errors_test\.go:\d+\] bad thing$`, err.Error())
}

func TestWrapf(t *testing.T) {
	assert.NoError(t, Wrapf(nil, "nothing"))

	err := Wrapf(ErrUnknownCapability, "lookup %q", "frobnicate")
	require.Error(t, err)
	assert.True(t, Is(err, ErrUnknownCapability))
	assert.Contains(t, err.Error(), `lookup "frobnicate"`)
	assert.Contains(t, err.Error(), "errors_test.go")
}

func TestStreamFailure(t *testing.T) {
	var err error = &StreamFailure{PartialText: "partial", Err: context.Canceled}
	wrapped := Wrapf(err, "turn")

	var sf *StreamFailure
	require.True(t, As(wrapped, &sf))
	assert.Equal(t, "partial", sf.PartialText)
	assert.True(t, Is(wrapped, context.Canceled))
}

func TestExecutionError(t *testing.T) {
	cause := stderrors.New("disk on fire")
	var err error = &ExecutionError{Capability: "write_file", Cause: cause}

	assert.True(t, Is(err, ErrExecution))
	assert.True(t, Is(err, cause))
	assert.False(t, Is(err, ErrInvalidArguments))
	assert.Contains(t, err.Error(), "write_file")
}

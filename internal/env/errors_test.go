package env

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapInteraction(t *testing.T) {
	cause := errors.New("physics server disconnected")
	err := WrapInteraction("step", cause)

	require.Error(t, err)
	assert.True(t, IsInteraction(err))
	assert.True(t, IsHard(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "step failed")
	assert.Contains(t, err.Error(), "physics server disconnected")
	assert.NotEmpty(t, TraceOf(err))
}

func TestWrapInteraction_Nil(t *testing.T) {
	assert.NoError(t, WrapInteraction("step", nil))
}

func TestWrapInteraction_NoDoubleWrap(t *testing.T) {
	first := WrapInteraction("reset", errors.New("boom"))
	second := WrapInteraction("step", fmt.Errorf("outer: %w", first))

	var e *Error
	require.True(t, errors.As(second, &e))
	assert.Equal(t, "reset", e.Op)
}

func TestInteract_RecoversPanic(t *testing.T) {
	err := Interact("step", func() error {
		panic("simulator exploded")
	})

	require.Error(t, err)
	assert.True(t, IsInteraction(err))

	var p *PanicError
	require.True(t, errors.As(err, &p))
	assert.Equal(t, "simulator exploded", p.Value)
	assert.Contains(t, TraceOf(err), "goroutine")
}

func TestInteract_Success(t *testing.T) {
	assert.NoError(t, Interact("reset", func() error { return nil }))
}

func TestKinds(t *testing.T) {
	assert.True(t, IsConfiguration(NewConfigurationError("policy", "unknown policy")))
	assert.True(t, IsValidation(NewValidationError("observations", "NaN")))
	assert.True(t, IsResource(NewResourceError("encode", "disk full")))
	assert.True(t, IsResource(WrapResource("encode", errors.New("disk full"))))
	assert.NoError(t, WrapResource("encode", nil))

	assert.False(t, IsHard(NewValidationError("x", "y")))
	assert.False(t, IsHard(nil))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRootCause(t *testing.T) {
	cause := errors.New("root")
	err := fmt.Errorf("a: %w", WrapInteraction("step", fmt.Errorf("b: %w", cause)))
	assert.Equal(t, cause, RootCause(err))
}

func TestErrorMessage_NoCause(t *testing.T) {
	err := &Error{Kind: KindResource, Op: "encode"}
	assert.Equal(t, "RESOURCE_ERROR: encode failed", err.Error())
}

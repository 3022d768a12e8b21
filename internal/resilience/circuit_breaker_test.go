package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: t.Name()}, zerolog.Nop())
	assert.Equal(t, "closed", cb.GetState())
	assert.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: t.Name(), FailureThreshold: 2}, zerolog.Nop())
	fail := errors.New("boom")

	assert.Error(t, cb.Call(func() error { return fail }))
	assert.Equal(t, "closed", cb.GetState())
	assert.Error(t, cb.Call(func() error { return fail }))
	assert.Equal(t, "open", cb.GetState())

	err := cb.Call(func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: t.Name(), FailureThreshold: 1, ResetTimeout: time.Millisecond}, zerolog.Nop())
	fail := errors.New("boom")

	require := assert.New(t)
	require.Error(cb.Call(func() error { return fail }))
	require.Equal("open", cb.GetState())

	time.Sleep(5 * time.Millisecond)
	require.NoError(cb.Call(func() error { return nil }))
	require.Equal("closed", cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: t.Name(), FailureThreshold: 1}, zerolog.Nop())
	_ = cb.Call(func() error { return errors.New("boom") })
	assert.Equal(t, "open", cb.GetState())

	cb.Reset()
	assert.Equal(t, "closed", cb.GetState())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
}

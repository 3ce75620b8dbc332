package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 12)
	assert.Regexp(t, "^[0-9A-F]+$", code)

	other, err := GenerateCode(6)
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}

func TestHmac256_RoundTrip(t *testing.T) {
	body := []byte(`{"chargeId":"ch_1","amount":"150.00"}`)
	key := []byte("test-signing-key")

	sig := Hmac256(body, key)
	assert.Len(t, sig, 64)

	assert.True(t, VerifyHmac256(body, key, sig))
	assert.False(t, VerifyHmac256(body, []byte("wrong-key"), sig))
	assert.False(t, VerifyHmac256([]byte("tampered"), key, sig))
	assert.False(t, VerifyHmac256(body, key, "deadbeef"))
}

func TestCircuitBreaker_TripsAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()
	boom := errors.New("provider down")

	for i := 0; i < 5; i++ {
		_, err := cb.Execute(ctx, func() (any, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(ctx, func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		result, err := cb.Execute(ctx, func() (any, error) { return i, nil })
		require.NoError(t, err)
		assert.Equal(t, i, result)
	}

	assert.Equal(t, StateClosed, cb.State())
}

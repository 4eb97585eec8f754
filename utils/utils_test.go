package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)
	require.NoError(t, err)

	assert.Len(t, code, 8) // 4 bytes hex encoded
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestGenerateCode_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode(8)
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}

func TestGenerateTicketCode(t *testing.T) {
	code, err := GenerateTicketCode()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(code, "PLT-"))
	assert.Len(t, code, 12)
}

func TestTokenSource_ReusesUntilNearExpiry(t *testing.T) {
	source := NewTokenSource("test-key", "planora-cf", 15*time.Minute)

	first, err := source.Token()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTokenSource_MintsValidToken(t *testing.T) {
	source := NewTokenSource("test-key", "planora-cf", 15*time.Minute)

	token, err := source.Token()
	require.NoError(t, err)

	assert.False(t, TokenExpired(token))
}

func TestTokenExpired(t *testing.T) {
	expired := NewTokenSource("test-key", "planora-cf", -time.Hour)
	token, err := expired.Token()
	require.NoError(t, err)

	assert.True(t, TokenExpired(token))
	assert.True(t, TokenExpired("not-a-jwt"))
	assert.True(t, TokenExpired(""))
}

func TestCircuitBreaker_ClosedAllowsRequests(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TripsAfterFailureRatio(t *testing.T) {
	cb := NewCircuitBreaker("test")
	boom := errors.New("boom")

	// Exceed maxRequests with a 100% failure rate to trip the breaker.
	for i := 0; i < 101; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
	}

	assert.Equal(t, StateOpen, cb.State())

	_, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "should not run", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

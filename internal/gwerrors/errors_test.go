package gwerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableFallback(t *testing.T) {
	assert.True(t, IsRetryableFallback(New(CodeProviderRateLimit, "rate limited", nil)))
	assert.True(t, IsRetryableFallback(New(CodeProviderExceededQuota, "quota", nil)))
	assert.False(t, IsRetryableFallback(New(CodeAuthRequired, "auth", nil)))
	assert.False(t, IsRetryableFallback(errors.New("plain")))
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeProviderRateLimit, "a", nil)
	b := New(CodeProviderRateLimit, "b", nil)
	c := New(CodeProviderResponseError, "c", nil)

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 429, StatusOf(New(CodeProviderRateLimit, "x", nil)))
	assert.Equal(t, 500, StatusOf(errors.New("unknown")))
}

func TestWithDetail(t *testing.T) {
	e := New(CodeProviderRateLimit, "x", nil).WithDetail("waitSeconds", 5)
	assert.Equal(t, 5, e.Details["waitSeconds"])
}

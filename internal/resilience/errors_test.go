package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"), 429)), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"pattern", errors.New("dial tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.NoError(t, ClassifyHTTPStatus("svc", 200, ""))
	assert.NoError(t, ClassifyHTTPStatus("svc", 204, ""))

	err := ClassifyHTTPStatus("svc", 429, "slow down")
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "svc: http 429: slow down")

	err = ClassifyHTTPStatus("svc", 502, "")
	assert.True(t, Retryable(err))

	err = ClassifyHTTPStatus("svc", 401, "invalid token")
	assert.True(t, IsPermanent(err))
	assert.False(t, Retryable(err))

	err = ClassifyHTTPStatus("svc", 404, "")
	assert.True(t, IsPermanent(err))
}

func TestPermanentError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewPermanentError(inner, 400)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "inner", err.Error())
}

func TestClassifyResponse_RetryAfter(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": {"7"}}}
	err := ClassifyResponse("social", resp, []byte("rate limited"))
	require.Error(t, err)
	d, ok := RetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	resp = &http.Response{StatusCode: 403, Header: http.Header{"Retry-After": {"7"}}}
	_, ok = RetryAfter(ClassifyResponse("social", resp, nil))
	assert.False(t, ok, "permanent errors carry no hint")

	assert.NoError(t, ClassifyResponse("social", &http.Response{StatusCode: 200, Header: http.Header{}}, nil))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("soon", now))
	assert.Zero(t, parseRetryAfter("", now))
}

package httpx

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (s statusErr) Error() string       { return "status" }
func (s statusErr) HTTPStatusCode() int { return int(s) }

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "429", err: statusErr(http.StatusTooManyRequests), want: true},
		{name: "503", err: statusErr(http.StatusServiceUnavailable), want: true},
		{name: "400", err: statusErr(http.StatusBadRequest), want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryableError(tc.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Backoff(100*time.Millisecond, time.Second, 1))
	assert.Equal(t, 400*time.Millisecond, Backoff(100*time.Millisecond, time.Second, 3))
	assert.Equal(t, time.Second, Backoff(100*time.Millisecond, time.Second, 10))
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 5*time.Second, RetryAfterDuration(resp, time.Second, 5*time.Second))
	assert.Equal(t, time.Second, RetryAfterDuration(nil, time.Second, 5*time.Second))
}

package errors

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransientClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("x"), "x"), true},
		{"explicit permanent", NewPermanentError(errors.New("x"), "x"), false},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(errors.New("x"), "x")), true},
		{"rate limited", &TransientError{Err: errors.New("HTTP 429"), StatusCode: 429}, true},
		{"http 500 in message", errors.New("HTTP 500: internal"), true},
		{"http 400 in message", errors.New("HTTP 400: bad request"), false},
		{"status phrase", errors.New("upstream status 503"), true},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"connection refused text", errors.New("connect: connection refused"), true},
		{"plain error", errors.New("something odd"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "%d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "%d", code)
	}
}

func TestExtractHTTPStatusCode(t *testing.T) {
	assert.Equal(t, 429, ExtractHTTPStatusCode(&TransientError{StatusCode: 429}))
	assert.Equal(t, 400, ExtractHTTPStatusCode(&PermanentError{StatusCode: 400}))
	assert.Equal(t, 502, ExtractHTTPStatusCode(errors.New("HTTP 502: bad gateway")))
	assert.Equal(t, 503, ExtractHTTPStatusCode(errors.New("got status 503 from upstream")))
	assert.Equal(t, 0, ExtractHTTPStatusCode(errors.New("no code here")))
}

func TestKindErrors(t *testing.T) {
	err := New(KindPlanInvalidJSON, "bad payload: %s", "oops")
	assert.Equal(t, KindPlanInvalidJSON, KindOf(err))
	assert.True(t, HasKind(err, KindPlanInvalidJSON))
	assert.False(t, HasKind(err, KindTimeout))
	assert.Contains(t, err.Error(), "plan-invalid-json")
	assert.Contains(t, err.Error(), "oops")

	wrapped := fmt.Errorf("outer: %w", Wrap(KindAborted, errors.New("inner")))
	assert.Equal(t, KindAborted, KindOf(wrapped))

	assert.Nil(t, Wrap(KindAborted, nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("anonymous")))
}

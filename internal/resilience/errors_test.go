package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error must not be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	err := fmt.Errorf("search page 3: %w", NewTransientError(errors.New("status 503"), 503))
	if !IsTransient(err) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_Syscall(t *testing.T) {
	if !IsTransient(fmt.Errorf("dial: %w", syscall.ECONNRESET)) {
		t.Error("ECONNRESET should be transient")
	}
	if !IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)) {
		t.Error("ECONNREFUSED should be transient")
	}
}

func TestIsTransient_StringHeuristics(t *testing.T) {
	cases := []string{
		"read tcp: connection reset by peer",
		"Get \"https://registry.example\": net/http: TLS handshake timeout",
		"lookup registry.example: no such host",
		"read: i/o timeout",
	}
	for _, msg := range cases {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected transient: %q", msg)
		}
	}
}

func TestIsTransient_PlainErrorsAreNot(t *testing.T) {
	cases := []string{
		"session expired",
		"business not found",
		"challenge could not be solved",
	}
	for _, msg := range cases {
		if IsTransient(errors.New(msg)) {
			t.Errorf("expected non-transient: %q", msg)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	te := NewTransientError(inner, 500)
	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to inner error")
	}
	if te.StatusCode != 500 {
		t.Errorf("expected status 500, got %d", te.StatusCode)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d non-transient", code)
		}
	}
}

package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", NewTransientError(errors.New("status 503"), 503), true},
		{"wrapped transient", fmt.Errorf("fetch: %w", NewTransientError(errors.New("status 429"), 429)), true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"reset text", errors.New("read tcp 10.0.0.2:443: connection reset by peer"), true},
		{"dns text", errors.New("dial tcp: lookup example.com: no such host"), true},
		{"deadline text", errors.New("context deadline exceeded"), true},
		{"plain failure", errors.New("invalid request"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsTransient_NetTimeout(t *testing.T) {
	err := &net.DNSError{Err: "timeout", IsTimeout: true}
	if !IsTransient(err) {
		t.Fatal("net timeout must be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Fatalf("%d must be retryable", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 422, 501} {
		if IsTransientHTTPStatus(code) {
			t.Fatalf("%d must not be retryable", code)
		}
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("status 502")
	te := NewTransientError(inner, 502)
	if !errors.Is(te, inner) {
		t.Fatal("TransientError must unwrap to the inner error")
	}
	if te.StatusCode != 502 {
		t.Fatalf("StatusCode = %d, want 502", te.StatusCode)
	}
	if te.Error() != "status 502" {
		t.Fatalf("Error() = %q, want the inner message", te.Error())
	}
}

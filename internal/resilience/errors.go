package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks an error as retryable. Outbound clients wrap 429/5xx
// responses and connection-level failures in it so retry loops and the
// verifier can tell "try again" from "give up".
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable. statusCode is the HTTP status
// that caused it, or 0 for connection-level failures.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// retryableStatus holds the HTTP statuses worth a second attempt: the server
// asked us to back off or tripped over itself.
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransientHTTPStatus reports whether an HTTP status merits a retry.
func IsTransientHTTPStatus(statusCode int) bool {
	return retryableStatus[statusCode]
}

// transientFragments match connection-level hiccups in errors that reach us
// already flattened to strings by an HTTP client or an SDK.
var transientFragments = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
	"context deadline exceeded",
}

var connErrnos = []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

// IsTransient reports whether err is worth retrying: a TransientError
// anywhere in the chain, a network timeout, a refused or reset connection,
// or error text matching a known connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, target := range connErrnos {
		if errors.Is(err, target) {
			return true
		}
	}
	return matchesTransientText(err.Error())
}

func matchesTransientText(msg string) bool {
	msg = strings.ToLower(msg)
	for _, fragment := range transientFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// Package resilience provides the error taxonomy, retry, jittered delays,
// and circuit breaking used by the crawl orchestration core.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// ErrChainExhausted is returned when every strategy in the fallback chain is
// unavailable, including the guaranteed basic-info synthesis. It is only
// reachable in a misconfigured chain.
var ErrChainExhausted = eris.New("search chain exhausted: no available strategy")

// ErrSessionAlreadyRunning rejects a concurrent crawl session request.
var ErrSessionAlreadyRunning = eris.New("a crawl session is already running")

// ErrCanceled marks a run cut short by context cancellation. Accumulated
// results are flushed alongside it, never discarded.
var ErrCanceled = eris.New("run canceled")

// BlockedError signals an anti-bot or HTTP-level block from a source. It
// aborts the current primary-strategy attempt, not the whole chain.
type BlockedError struct {
	Source     string
	StatusCode int
	Kind       string // e.g. "captcha", "cloudflare", "http_403"
}

func (e *BlockedError) Error() string {
	return "source blocked: " + e.Source + " (" + e.Kind + ")"
}

// NewBlockedError wraps a block signal from the given source.
func NewBlockedError(source string, statusCode int, kind string) *BlockedError {
	return &BlockedError{Source: source, StatusCode: statusCode, Kind: kind}
}

// IsBlocked reports whether the error chain contains a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}

// InvalidShapeError signals that a strategy or batch function returned data
// failing a structural check. Treated as a failure for fallback purposes.
type InvalidShapeError struct {
	Detail string
}

func (e *InvalidShapeError) Error() string {
	return "invalid result shape: " + e.Detail
}

// NewInvalidShapeError describes a structural check failure.
func NewInvalidShapeError(detail string) *InvalidShapeError {
	return &InvalidShapeError{Detail: detail}
}

// IsInvalidShape reports whether the error chain contains an InvalidShapeError.
func IsInvalidShape(err error) bool {
	var ie *InvalidShapeError
	return errors.As(err, &ie)
}

// TransientError wraps an error that is safe to retry (429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient network failure patterns.
// Blocked errors are never transient: retrying into a block burns the source.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsBlocked(err) {
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

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true for server-side statuses safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

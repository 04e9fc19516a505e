// Package walleterrors defines the closed error taxonomy shared by the
// HTTP responders, the consumer runner and the retry policy.
package walleterrors

import (
	"net/http"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound is an expected absence: cache miss, missing row.
	KindNotFound
	// KindBadRequest covers invalid parameters and malformed bodies.
	KindBadRequest
	// KindUnauthorized covers missing, expired or wrong signatures.
	KindUnauthorized
	// KindUpstream is a non-transient failure from an external service.
	KindUpstream
	// KindTransient covers timeouts, 429 and 502-504; always retryable.
	KindTransient
	// KindInvariant marks an impossible state; never retried.
	KindInvariant
	// KindFatal aborts the process with a non-zero exit code.
	KindFatal
)

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Cause() error  { return e.err }

// E wraps err with a kind. Wrapping nil returns nil.
func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

func NotFound(what string) error {
	return &kindError{kind: KindNotFound, err: errors.Errorf("%s not found", what)}
}

func BadRequest(format string, args ...interface{}) error {
	return &kindError{kind: KindBadRequest, err: errors.Errorf(format, args...)}
}

func Unauthorized(format string, args ...interface{}) error {
	return &kindError{kind: KindUnauthorized, err: errors.Errorf(format, args...)}
}

func Invariant(format string, args ...interface{}) error {
	return &kindError{kind: KindInvariant, err: errors.Errorf(format, args...)}
}

func Transient(format string, args ...interface{}) error {
	return &kindError{kind: KindTransient, err: errors.Errorf(format, args...)}
}

// KindOf classifies err, walking wrap chains. Unclassified errors report
// KindUnknown and are treated as retryable by consumers.
func KindOf(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok {
			return ke.kind
		}
		cause, ok := err.(interface{ Unwrap() error })
		if !ok {
			// pkg/errors wrappers expose Cause instead of Unwrap.
			if ce, ok := err.(interface{ Cause() error }); ok {
				err = ce.Cause()
				continue
			}
			return KindUnknown
		}
		err = cause.Unwrap()
	}
	return KindUnknown
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// Retryable reports whether a consumer should retry the delivery.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindUpstream, KindUnknown:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a kind to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindUpstream, KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryableStatus reports whether an upstream HTTP status is transient.
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

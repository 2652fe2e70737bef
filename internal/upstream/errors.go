// Package upstream holds the scaffolding shared by every external-system
// integration: typed transport bindings, auth propagation, error decoding
// into a closed taxonomy and the façade runner that enforces logging and
// call-context release on every exit path.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind is the closed classification of failures surfaced by integrations.
type Kind string

const (
	KindClient       Kind = "client-error"
	KindAuth         Kind = "auth-error"
	KindRateLimited  Kind = "rate-limited"
	KindUnavailable  Kind = "upstream-unavailable"
	KindDecode       Kind = "decode-error"
	KindInternal     Kind = "internal-unexpected"
	unclassifiedKind Kind = ""
)

// Kinds lists every classification in a stable order.
var Kinds = []Kind{KindClient, KindAuth, KindRateLimited, KindUnavailable, KindDecode, KindInternal}

// ErrValidation marks request validation failures detected before any I/O.
var ErrValidation = errors.New("invalid request")

// Error is the unified (kind, message) failure produced by decoders. Once
// built it travels to the controller boundary as the same value.
type Error struct {
	Kind    Kind
	Message string

	// System and Operation identify the call that failed.
	System    string
	Operation string
	// Status is the upstream HTTP status, 0 when no response was received.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.System == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.System, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus is the status the portal answers with for this failure.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindClient:
		switch e.Status {
		case http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity:
			return e.Status
		}
		return http.StatusBadRequest
	case KindAuth:
		if e.Status == http.StatusForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		if isTimeout(e.Cause) || e.Status == http.StatusGatewayTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindDecode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts the unified error from err's chain.
func AsError(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) && ue != nil {
		return ue, true
	}
	return nil, false
}

// KindOf returns the classification of err, internal-unexpected for anything
// that did not come through a decoder and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return unclassifiedKind
	}
	if ue, ok := AsError(err); ok {
		return ue.Kind
	}
	return KindInternal
}

// Invalid builds a client-error for a request rejected before leaving the process.
func Invalid(system, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{
		Kind:    KindClient,
		Message: msg,
		System:  system,
		Cause:   fmt.Errorf("%w: %s", ErrValidation, msg),
	}
}

// Unauthenticated builds the fail-fast error for calls that need a token but have none.
func Unauthenticated(system, msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg, System: system}
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

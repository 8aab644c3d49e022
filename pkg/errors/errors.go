// paybill-gateway/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an error so transports can map it without string matching.
type Kind string

const (
	Unauthorized         Kind = "UNAUTHORIZED"
	Forbidden            Kind = "FORBIDDEN"
	NotFound             Kind = "NOT_FOUND"
	Inactive             Kind = "INACTIVE"
	InvalidInput         Kind = "INVALID_INPUT"
	AuthError            Kind = "AUTH_ERROR"
	GatewayUnreachable   Kind = "GATEWAY_UNREACHABLE"
	GatewayProtocolError Kind = "GATEWAY_PROTOCOL_ERROR"
	GatewayRejected      Kind = "GATEWAY_REJECTED"
	GatewayBusinessError Kind = "GATEWAY_BUSINESS_ERROR"
	MalformedCallback    Kind = "MALFORMED_CALLBACK"
	UnknownTransaction   Kind = "UNKNOWN_TRANSACTION"
	AmbiguousTransaction Kind = "AMBIGUOUS_TRANSACTION"
	PersistenceFailure   Kind = "PERSISTENCE_FAILURE"
	ExhaustedKeyspace    Kind = "EXHAUSTED_KEYSPACE"
	Internal             Kind = "INTERNAL"
)

// Upstream carries what the gateway told us when it refused a request.
type Upstream struct {
	Code            string
	Description     string
	CustomerMessage string
	Raw             string
}

type E struct {
	Code     Kind
	Message  string
	Err      error
	Upstream *Upstream
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func New(code Kind, msg string) error {
	return &E{Code: code, Message: msg}
}

func Wrap(code Kind, msg string, err error) error {
	return &E{Code: code, Message: msg, Err: err}
}

// WithUpstream builds a gateway error that keeps the upstream code and description.
func WithUpstream(code Kind, msg string, up Upstream) error {
	return &E{Code: code, Message: msg, Upstream: &up}
}

// As returns the first *E in err's chain.
func As(err error) (*E, bool) {
	var e *E
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the kind of err, Internal for anything unclassified.
func CodeOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Code
	}
	return Internal
}

func Is(err error, code Kind) bool {
	return err != nil && CodeOf(err) == code
}

func HTTPStatus(code Kind) int {
	switch code {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden, Inactive:
		return http.StatusForbidden
	case NotFound, UnknownTransaction:
		return http.StatusNotFound
	case InvalidInput, AuthError, GatewayRejected, GatewayBusinessError, MalformedCallback:
		return http.StatusBadRequest
	case GatewayUnreachable, GatewayProtocolError:
		return http.StatusBadGateway
	case AmbiguousTransaction:
		return http.StatusConflict
	case ExhaustedKeyspace:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

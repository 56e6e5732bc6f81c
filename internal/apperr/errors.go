package apperr

import (
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
	KindForbidden
	KindDevice
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindDevice:
		return "device"
	case KindCrypto:
		return "crypto"
	default:
		return "internal"
	}
}

// Error is the error type surfaced to HTTP callers. Message is user facing,
// Details carries every failed check for validation errors and Data an optional
// payload (e.g. the record that caused a conflict).
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Data    any
	status  int
	err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.err }

// Status returns the HTTP status for the error.
func (e *Error) Status() int {
	if e.status != 0 {
		return e.status
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindDevice:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) WithStatus(code int) *Error {
	e.status = code
	return e
}

func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.err = err
	return e
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string, details ...string) *Error {
	e := newError(KindValidation, msg)
	e.Details = details
	return e
}

func NotFound(msg string) *Error  { return newError(KindNotFound, msg) }
func Conflict(msg string) *Error  { return newError(KindConflict, msg) }
func Auth(msg string) *Error      { return newError(KindAuth, msg) }
func Forbidden(msg string) *Error { return newError(KindForbidden, msg) }
func Device(msg string) *Error    { return newError(KindDevice, msg) }
func Crypto(msg string) *Error    { return newError(KindCrypto, msg) }
func Internal(msg string) *Error  { return newError(KindInternal, msg) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// StatusOf maps any error to an HTTP status; unknown errors are 500.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}

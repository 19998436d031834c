// Package apierror defines the single error type the admin client surfaces for
// every failed backend call. Values are built by the envelope and transport
// packages and are read-only afterwards.
package apierror

import (
	"errors"
	"fmt"
	"maps"
)

// Kind separates where an error came from.
type Kind string

const (
	// KindTransport is a network or body-parse failure with no backend code.
	KindTransport Kind = "transport"
	// KindDomain is a namespaced error from the v2 envelope (e.g. "auth.session_expired").
	KindDomain Kind = "domain"
	// KindNativeDatabase is a raw database/PostgREST error (e.g. "23505", "PGRST301").
	KindNativeDatabase Kind = "native_database"
	// KindHTTP is synthesized from an HTTP status when the body matched no known shape.
	KindHTTP Kind = "http"
)

// Fields carries everything needed to build an Error.
type Fields struct {
	Kind          Kind
	Code          string
	Message       string
	MessageKey    string
	MessageParams map[string]any
	FieldErrors   map[string]string
	TraceID       string
	HTTPStatus    int
	Details       string
	Hint          string
	Endpoint      string
	AuthError     bool
	Cause         error
}

// Error is the normalized backend error.
type Error struct {
	kind          Kind
	code          string
	message       string
	messageKey    string
	messageParams map[string]any
	fieldErrors   map[string]string
	traceID       string
	httpStatus    int
	details       string
	hint          string
	endpoint      string
	authError     bool
	cause         error
}

// New builds an Error. Maps are copied so later changes to f do not leak in.
func New(f Fields) *Error {
	return &Error{
		kind:          f.Kind,
		code:          f.Code,
		message:       f.Message,
		messageKey:    f.MessageKey,
		messageParams: maps.Clone(f.MessageParams),
		fieldErrors:   maps.Clone(f.FieldErrors),
		traceID:       f.TraceID,
		httpStatus:    f.HTTPStatus,
		details:       f.Details,
		hint:          f.Hint,
		endpoint:      f.Endpoint,
		authError:     f.AuthError,
		cause:         f.Cause,
	}
}

func (e *Error) Kind() Kind { return e.kind }
func (e *Error) Code() string { return e.code }
func (e *Error) Message() string { return e.message }
func (e *Error) MessageKey() string { return e.messageKey }
func (e *Error) TraceID() string { return e.traceID }
func (e *Error) HTTPStatus() int { return e.httpStatus }
func (e *Error) Details() string { return e.details }
func (e *Error) Hint() string { return e.hint }
func (e *Error) Endpoint() string { return e.endpoint }
func (e *Error) IsAuthError() bool { return e.authError }
func (e *Error) Unwrap() error { return e.cause }
func (e *Error) HasFieldErrors() bool { return len(e.fieldErrors) > 0 }

// MessageParams returns a copy of the localization parameters.
func (e *Error) MessageParams() map[string]any {
	return maps.Clone(e.messageParams)
}

// FieldErrors returns a copy of the per-field messages keyed by field pointer.
func (e *Error) FieldErrors() map[string]string {
	return maps.Clone(e.fieldErrors)
}

// DisplayMessage is the text to show when no translation exists for MessageKey.
func (e *Error) DisplayMessage() string {
	if e.message != "" {
		return e.message
	}
	if e.details != "" {
		return e.details
	}
	return Title(e)
}

func (e *Error) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.details
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, msg)
}

// WithTraceID returns a copy carrying id, unless e already has a trace id.
func (e *Error) WithTraceID(id string) *Error {
	if e.traceID != "" || id == "" {
		return e
	}
	clone := *e
	clone.traceID = id
	return &clone
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuth reports whether err carries an authentication failure.
func IsAuth(err error) bool {
	apiErr, ok := As(err)
	return ok && apiErr.IsAuthError()
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Code() == code
}

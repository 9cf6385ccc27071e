package server

import "fmt"

// ErrorKind classifies a handler failure. Every kind except
// KindInfrastructure is an expected condition whose message is safe to
// show to the client verbatim; infrastructure detail is logged
// server-side and replaced with a generic message on the wire.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindAuth
	KindAuthorization
	KindNotFound
	KindConflict
	KindInfrastructure
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// HandlerError is the typed failure result of a request handler. It is
// always local to the request that raised it; the connection stays
// open.
type HandlerError struct {
	Kind    ErrorKind
	Message string // client-facing
	Err     error  // underlying cause, logged only
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func errValidation(msg string) *HandlerError {
	return &HandlerError{Kind: KindValidation, Message: msg}
}

func errAuth(msg string) *HandlerError {
	return &HandlerError{Kind: KindAuth, Message: msg}
}

func errAuthorization(msg string) *HandlerError {
	return &HandlerError{Kind: KindAuthorization, Message: msg}
}

func errNotFound(msg string) *HandlerError {
	return &HandlerError{Kind: KindNotFound, Message: msg}
}

func errConflict(msg string) *HandlerError {
	return &HandlerError{Kind: KindConflict, Message: msg}
}

func errInfra(operation string, err error) *HandlerError {
	return &HandlerError{
		Kind:    KindInfrastructure,
		Message: "internal error",
		Err:     fmt.Errorf("%s: %w", operation, err),
	}
}

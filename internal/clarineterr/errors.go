// Package clarineterr defines the typed error taxonomy used across the
// core: entity store, cache, session, and DICOM client all return (or
// wrap) one of these so that HTTP handlers can map errors to status
// codes at the boundary without string-matching.
package clarineterr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a taxonomy bucket and its HTTP status mapping.
type Kind int

const (
	Internal Kind = iota
	NotFound
	Conflict
	Validation
	Unauthorized
	Forbidden
	ProtocolAssociation
	ProtocolStatus
	DependencyTimeout
	Storage
)

func (k Kind) httpStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Validation:
		return http.StatusUnprocessableEntity
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case ProtocolAssociation:
		return http.StatusServiceUnavailable
	case ProtocolStatus:
		return http.StatusBadGateway
	case DependencyTimeout:
		return http.StatusRequestTimeout
	case Storage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the concrete error type for every taxonomy bucket.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the status code this error maps to at the HTTP
// boundary.
func (e *Error) HTTPStatus() int { return e.Kind.httpStatus() }

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: err}
}

func NotFoundf(format string, args ...any) *Error  { return newf(NotFound, format, args...) }
func Conflictf(format string, args ...any) *Error  { return newf(Conflict, format, args...) }
func Validationf(format string, args ...any) *Error {
	return newf(Validation, format, args...)
}
func Unauthorizedf(format string, args ...any) *Error {
	return newf(Unauthorized, format, args...)
}
func Forbiddenf(format string, args ...any) *Error { return newf(Forbidden, format, args...) }
func ProtocolAssociationf(err error, format string, args ...any) *Error {
	return wrap(ProtocolAssociation, err, format, args...)
}
func ProtocolStatusf(format string, args ...any) *Error {
	return newf(ProtocolStatus, format, args...)
}
func DependencyTimeoutf(err error, format string, args ...any) *Error {
	return wrap(DependencyTimeout, err, format, args...)
}
func Storagef(err error, format string, args ...any) *Error {
	return wrap(Storage, err, format, args...)
}
func Internalf(err error, format string, args ...any) *Error {
	return wrap(Internal, err, format, args...)
}

// StatusOf returns the HTTP status for err, walking the Unwrap chain;
// unrecognized errors map to 500.
func StatusOf(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// KindOf reports the taxonomy bucket for err, or (Internal, false) if
// err is not one of ours.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return Internal, false
}

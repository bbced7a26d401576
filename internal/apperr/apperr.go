// Package apperr defines the recoverable error kinds that cross package
// boundaries and how they map onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrAuthFailure     = errors.New("invalid username or password")
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrDuplicateName   = errors.New("name already exists")
	ErrNotFound        = errors.New("not found")
	ErrTooManyAttempts = errors.New("too many failed login attempts")
)

// ValidationError carries one message per offending field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records msg for field unless the field already has a message.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

// OrNil returns e when it holds at least one field, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// AsValidation unwraps a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

// Kind is the stable code reported to clients for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthFailure):
		return "AUTH_FAILURE"
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrDuplicateName):
		return "DUPLICATE_NAME"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTooManyAttempts):
		return "TOO_MANY_ATTEMPTS"
	}
	if _, ok := AsValidation(err); ok {
		return "VALIDATION_ERROR"
	}
	return "INTERNAL_ERROR"
}

// Status maps err to an HTTP status code. Unknown errors are 500.
func Status(err error) int {
	switch Kind(err) {
	case "AUTH_FAILURE", "UNAUTHENTICATED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "DUPLICATE_NAME":
		return http.StatusConflict
	case "NOT_FOUND":
		return http.StatusNotFound
	case "TOO_MANY_ATTEMPTS":
		return http.StatusTooManyRequests
	case "VALIDATION_ERROR":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// IsRecoverable reports whether err is one of the user-visible kinds.
func IsRecoverable(err error) bool {
	k := Kind(err)
	return k != "" && k != "INTERNAL_ERROR"
}

// PublicMessage is the message safe to show a client. Internal failures
// never leak driver or connectivity detail.
func PublicMessage(err error) string {
	switch Kind(err) {
	case "AUTH_FAILURE":
		return ErrAuthFailure.Error()
	case "UNAUTHENTICATED":
		return ErrUnauthenticated.Error()
	case "FORBIDDEN":
		return ErrForbidden.Error()
	case "DUPLICATE_NAME":
		return ErrDuplicateName.Error()
	case "NOT_FOUND":
		return ErrNotFound.Error()
	case "TOO_MANY_ATTEMPTS":
		return ErrTooManyAttempts.Error()
	case "VALIDATION_ERROR":
		return "invalid request"
	}
	return "internal server error"
}

// Body is the JSON error envelope returned by every endpoint.
type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// BodyOf builds the client-facing envelope for err.
func BodyOf(err error) Body {
	d := Detail{Code: Kind(err), Message: PublicMessage(err)}
	if v, ok := AsValidation(err); ok {
		d.Fields = v.Fields
	}
	return Body{Error: d}
}

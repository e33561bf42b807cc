// ABOUTME: RPC error kinds with constructors and HTTP status hints
// ABOUTME: Includes category errors and validation types consumed by the exception mapper

package rpc

import (
	"fmt"
	"net/http"
)

// Error is a classified RPC failure. Code is what goes on the wire;
// HTTPStatus is a hint for transports that need one and never leaves
// this process as part of the envelope.
type Error struct {
	Code       int
	Message    string
	Data       *Value
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Object converts the error to its wire shape.
func (e *Error) Object() *ErrorObject {
	return &ErrorObject{Code: e.Code, Message: e.Message, Data: e.Data}
}

// NewParseError wraps a wire-decode failure. The context string tags whether
// a request or a response failed to decode.
func NewParseError(context string, cause error) *Error {
	return &Error{
		Code:       CodeParseError,
		Message:    "Parse error: malformed " + context,
		HTTPStatus: http.StatusBadRequest,
		Cause:      cause,
	}
}

func NewInvalidRequest(detail string) *Error {
	msg := "Invalid request"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeInvalidRequest, Message: msg, HTTPStatus: http.StatusBadRequest}
}

func NewMethodNotFound(method string) *Error {
	return &Error{
		Code:       CodeMethodNotFound,
		Message:    fmt.Sprintf("Method not found: %s", method),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewInvalidParams builds a parameter failure. When field details are
// present each becomes one entry in the error data, with a source pointer
// and a message, so callers can attribute failures per field.
func NewInvalidParams(detail string, fields []FieldError) *Error {
	msg := "Invalid params"
	if detail != "" {
		msg = msg + ": " + detail
	}
	e := &Error{Code: CodeInvalidParams, Message: msg, HTTPStatus: http.StatusUnprocessableEntity}
	if len(fields) > 0 {
		items := make([]Value, 0, len(fields))
		for _, f := range fields {
			items = append(items, NewMap().
				Set("pointer", String(f.Pointer)).
				Set("message", String(f.Message)))
		}
		data := List(items...)
		e.Data = &data
	}
	return e
}

func NewInternalError(detail string) *Error {
	msg := "Internal error"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeInternalError, Message: msg, HTTPStatus: http.StatusInternalServerError}
}

func NewServerError(detail string) *Error {
	msg := "Server error"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeServerError, Message: msg, HTTPStatus: http.StatusInternalServerError}
}

func NewUnauthorized(detail string) *Error {
	msg := "Unauthorized"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeUnauthorized, Message: msg, HTTPStatus: http.StatusUnauthorized}
}

func NewForbidden(detail string) *Error {
	msg := "Forbidden"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeForbidden, Message: msg, HTTPStatus: http.StatusForbidden}
}

func NewResourceNotFound(detail string) *Error {
	msg := "Resource not found"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeResourceNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

func NewTooManyRequests(detail string) *Error {
	msg := "Too many requests"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeTooManyRequests, Message: msg, HTTPStatus: http.StatusTooManyRequests}
}

func NewServiceUnavailable(detail string) *Error {
	msg := "Service unavailable"
	if detail != "" {
		msg = msg + ": " + detail
	}
	return &Error{Code: CodeServiceUnavailable, Message: msg, HTTPStatus: http.StatusServiceUnavailable}
}

// FieldError attributes a validation failure to one field. Pointer is a
// source path such as "/user/email".
type FieldError struct {
	Pointer string
	Message string
}

// ValidationError aggregates per-field failures raised while constructing a
// structured parameter. The exception mapper converts it to InvalidParams.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		return fmt.Sprintf("validation failed: %s %s", e.Fields[0].Pointer, e.Fields[0].Message)
	}
	return fmt.Sprintf("validation failed on %d fields", len(e.Fields))
}

// Add records one failed field and returns the error for chaining.
func (e *ValidationError) Add(pointer, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Pointer: pointer, Message: message})
	return e
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// ValueUnmarshaler is the capability structured parameter types implement to
// construct and validate themselves from a decoded Value. Implementations
// return *ValidationError for validation failures.
type ValueUnmarshaler interface {
	FromValue(v Value) error
}

// AuthenticationError marks a failure to establish who the caller is.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// AuthorizationError marks a caller who is known but not allowed.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "authorization failed: " + e.Reason
}

// NotFoundError marks a missing application resource.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.Resource
}

// RateLimitError marks a caller over its request budget.
type RateLimitError struct {
	Reason string
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.Reason
}

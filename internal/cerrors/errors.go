// Copyright 2026 The CascadeHQ Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cerrors defines the closed set of error kinds the cascade engine
// surfaces to callers, each carrying a machine-readable kind, an HTTP status, a
// human message, and optional structured details.
package cerrors

import "fmt"

// Kind is a closed enum of machine-readable error codes.
type Kind string

const (
	Validation         Kind = "VALIDATION_ERROR"
	InvalidJSON        Kind = "INVALID_JSON"
	MissingRequired    Kind = "MISSING_REQUIRED"
	InvalidFunctionID  Kind = "INVALID_FUNCTION_ID"
	InvalidVersion     Kind = "INVALID_VERSION"
	InvalidLanguage    Kind = "INVALID_LANGUAGE"
	InvalidParameter   Kind = "INVALID_PARAMETER"
	InvalidDuration    Kind = "INVALID_DURATION"
	InvalidCursor      Kind = "INVALID_CURSOR"
	Unauthorized       Kind = "UNAUTHORIZED"
	Forbidden          Kind = "FORBIDDEN"
	NotFound           Kind = "NOT_FOUND"
	FunctionNotFound   Kind = "FUNCTION_NOT_FOUND"
	MethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	Timeout            Kind = "TIMEOUT"
	Conflict           Kind = "CONFLICT"
	PayloadTooLarge    Kind = "PAYLOAD_TOO_LARGE"
	CascadeExhausted   Kind = "CASCADE_EXHAUSTED"
	CompilationError   Kind = "COMPILATION_ERROR"
	ExecutionError     Kind = "EXECUTION_ERROR"
	InternalError      Kind = "INTERNAL_ERROR"
	NotImplemented     Kind = "NOT_IMPLEMENTED"
	ServiceUnavailable Kind = "SERVICE_UNAVAILABLE"
	Cancelled          Kind = "CANCELLED"
	TierAuthorization  Kind = "TierAuthorizationError"
)

// statusByKind maps every kind to its HTTP status code.
var statusByKind = map[Kind]int{
	Validation:         400,
	InvalidJSON:        400,
	MissingRequired:    400,
	InvalidFunctionID:  400,
	InvalidVersion:     400,
	InvalidLanguage:    400,
	InvalidParameter:   400,
	InvalidDuration:    400,
	InvalidCursor:      400,
	Unauthorized:       401,
	Forbidden:          403,
	NotFound:           404,
	FunctionNotFound:   404,
	MethodNotAllowed:   405,
	Timeout:            408,
	Conflict:           409,
	PayloadTooLarge:    413,
	CascadeExhausted:   422,
	CompilationError:   400,
	ExecutionError:     500,
	InternalError:      500,
	NotImplemented:     501,
	ServiceUnavailable: 503,
	Cancelled:          500,
	TierAuthorization:  403,
}

// Status returns the HTTP status code associated with kind, defaulting to 500
// for an unregistered kind (which should never happen for a closed enum).
func Status(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return 500
}

// CascadeError is the error type every user-visible failure in the cascade
// engine is expressed as.
type CascadeError struct {
	Kind    Kind
	Message string
	Details map[string]any
}

// Error implements the error interface. A nil receiver is safe to call.
func (e *CascadeError) Error() string {
	if e == nil {
		return "cascade: unknown error"
	}
	return fmt.Sprintf("cascade: %s: %s", e.Kind, e.Message)
}

// Status returns the HTTP status this error should be reported under.
func (e *CascadeError) Status() int {
	if e == nil {
		return 500
	}
	return Status(e.Kind)
}

// New constructs a *CascadeError. details may be nil.
func New(kind Kind, message string, details map[string]any) *CascadeError {
	return &CascadeError{Kind: kind, Message: message, Details: details}
}

// As reports whether err is itself a *CascadeError. Unlike errors.As it does
// not unwrap: a *CascadeError wrapped inside another error is not found.
func As(err error) (*CascadeError, bool) {
	ce, ok := err.(*CascadeError)
	return ce, ok
}

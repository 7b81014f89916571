// Package apperr defines the client-facing error codes of the API. An *Error
// carries the GraphQL `extensions` the executor attaches to located errors.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	BadUserInput    Code = "BAD_USER_INPUT"
	NotFound        Code = "NOT_FOUND"
	Conflict        Code = "CONFLICT"
	Unauthenticated Code = "UNAUTHENTICATED"
	Internal        Code = "INTERNAL_SERVER_ERROR"
)

type Error struct {
	Code    Code
	Message string
	// FieldErrors maps input fields to validation messages (BAD_USER_INPUT).
	FieldErrors map[string][]string
	FormErrors  []string
	Err         error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Extensions returns the GraphQL error extensions.
func (e *Error) Extensions() map[string]any {
	ext := map[string]any{"code": string(e.Code)}
	if len(e.FieldErrors) > 0 || len(e.FormErrors) > 0 {
		fields := make(map[string]any, len(e.FieldErrors))
		for k, v := range e.FieldErrors {
			fields[k] = v
		}
		form := e.FormErrors
		if form == nil {
			form = []string{}
		}
		ext["validationErrors"] = map[string]any{"formErrors": form, "fieldErrors": fields}
	}
	return ext
}

func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and a client-facing message to err.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation reports invalid input with per-field messages.
func Validation(fields map[string][]string) *Error {
	return &Error{Code: BadUserInput, Message: "Invalid input", FieldErrors: fields}
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

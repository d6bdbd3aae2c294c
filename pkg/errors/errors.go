package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the typed error surfaced through HTTP envelopes and
// WebSocket error frames. Cause is never serialized.
type AppError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(code Code, message string) error {
	return &AppError{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error { return New(CodeInvalidArgument, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func AlreadyExists(msg string) error { return New(CodeAlreadyExists, msg) }

func Unauthorized(msg string) error { return New(CodeUnauthenticated, msg) }

func Forbidden(msg string) error { return New(CodePermissionDenied, msg) }

func Unavailable(msg string) error { return New(CodeUnavailable, msg) }

func Internal(msg string) error { return New(CodeInternal, msg) }

// CodeOf extracts the taxonomy code from any error chain.
// Non-AppError values are reported as CodeInternal.
func CodeOf(err error) Code {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return CodeInternal
}

func MessageOf(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Message
	}
	return "internal error"
}

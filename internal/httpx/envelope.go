package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperr "dehive/pkg/errors"
)

// Envelope is the uniform response shape of every HTTP endpoint.
type Envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	Error      any    `json:"error,omitempty"`
}

type errorBody struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{
		Success:    true,
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// Fail maps the error's taxonomy code to an HTTP status and writes a failure
// envelope. Internal errors are logged and replaced with a generic message so
// nothing leaks to the caller.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := StatusOf(code)
	msg := apperr.MessageOf(err)
	if code == apperr.CodeInternal {
		slog.Error("internal error", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, Envelope{
		Success:    false,
		StatusCode: status,
		Message:    msg,
		Error:      errorBody{Code: code, Message: msg},
	})
}

func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodePermissionDenied:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAlreadyExists:
		return http.StatusConflict
	case apperr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Decode parses a JSON body into dst, surfacing malformed input as a
// validation error.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "malformed request body", err)
	}
	return nil
}

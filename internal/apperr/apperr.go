// Package apperr provides the standardized error type plugins use to
// terminate a request with a client or server error. Errors are returned as
// responses, never as exceptional control flow (spec §7).
package apperr

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/streamspace-dev/rangeweave/internal/httprange"
	"github.com/streamspace-dev/rangeweave/internal/pipeline"
)

// AppError is a structured error carrying enough information for the error
// plugin to render a body and for the access-log plugin to record a code.
type AppError struct {
	// Code is a machine-readable identifier, e.g. "SELECTOR_NO_MATCH".
	Code string `json:"code"`
	// Message is shown to the client.
	Message string `json:"message"`
	// Details is additional context, logged but not always rendered.
	Details string `json:"details,omitempty"`
	// StatusCode is the HTTP status to respond with.
	StatusCode int `json:"-"`
	// Selector is set for selector-protocol errors so the error plugin and
	// the selector handler can echo Content-Range consistently.
	Selector string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Response renders e as the pipeline.Response a plugin should return
// directly from OnRequest/OnResponse (spec §7: "errors are returned as
// responses, never as exceptional control flow"). Selector-protocol errors
// echo Content-Range the same way a successful selector response would, so
// a client can't distinguish "no match" from "matched zero due to a
// transient failure" by header shape alone.
func (e *AppError) Response() *pipeline.Response {
	r := pipeline.NewResponse(e.StatusCode)
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	if e.Selector != "" {
		r.Header.Set("Content-Range", httprange.ContentRange(e.Selector))
		r.Header.Set("Accept-Ranges", httprange.AcceptRanges)
	}
	body, err := json.Marshal(e)
	if err != nil {
		body = []byte(`{"code":"INTERNAL","message":"internal server error"}`)
	}
	r.Body = body
	return r
}

func new(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

func NotFound(what string) *AppError {
	return new("NOT_FOUND", fmt.Sprintf("%s not found", what), http.StatusNotFound)
}

func Forbidden(message string) *AppError {
	return new("FORBIDDEN", message, http.StatusForbidden)
}

func Unauthorized(message string) *AppError {
	return new("UNAUTHORIZED", message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return new("BAD_REQUEST", message, http.StatusBadRequest)
}

func MethodNotAllowed(message string) *AppError {
	return new("METHOD_NOT_ALLOWED", message, http.StatusMethodNotAllowed)
}

func Conflict(message string) *AppError {
	return new("CONFLICT", message, http.StatusConflict)
}

func TooManyRequests(message string) *AppError {
	return new("RATE_LIMITED", message, http.StatusTooManyRequests)
}

// Unavailable is the 503 a degraded host produces (a host whose root did
// not exist at config-load time is accepted but answers unavailable until
// the directory appears).
func Unavailable(message string) *AppError {
	return new("UNAVAILABLE", message, http.StatusServiceUnavailable)
}

func Internal(err error) *AppError {
	e := new("INTERNAL", "internal server error", http.StatusInternalServerError)
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// SelectorNoMatch is the 404 a selector-scoped request produces when the
// selector matches zero elements (spec §4.5).
func SelectorNoMatch(selector string) *AppError {
	e := new("SELECTOR_NO_MATCH", "No elements matched the selector", http.StatusNotFound)
	e.Selector = selector
	return e
}

// SelectorSyntax is the 400 an invalid CSS selector produces.
func SelectorSyntax(selector string, cause error) *AppError {
	e := new("SELECTOR_SYNTAX", "Invalid selector syntax", http.StatusBadRequest)
	e.Selector = selector
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// SelectorNonHTML is the 416 a selector request against a non-HTML resource
// produces (spec §4.5 preconditions).
func SelectorNonHTML(selector string) *AppError {
	e := new("SELECTOR_NON_HTML", "Target resource is not HTML", http.StatusRequestedRangeNotSatisfiable)
	e.Selector = selector
	return e
}

// SelectorForbidden is the 403 a selector outside a principal's allowed set
// produces (spec §4.5 authorization interaction).
func SelectorForbidden(selector string) *AppError {
	e := new("SELECTOR_FORBIDDEN", "Selector not permitted for this principal", http.StatusForbidden)
	e.Selector = selector
	return e
}

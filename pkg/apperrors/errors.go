// Package apperrors defines the failure kinds surfaced by the preprocessing
// and analysis pipeline. Every failure carries a stable, user-facing message
// and keeps its underlying cause for diagnostics.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a category of failure
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindDecode            Kind = "decode"
	KindEncode            Kind = "encode"
	KindEmptyResponse     Kind = "empty_response"
	KindMalformedResponse Kind = "malformed_response"
	KindAnalysisFailed    Kind = "analysis_failed"
	KindInternal          Kind = "internal"
)

// Default user-facing messages per kind
var messages = map[Kind]string{
	KindInvalidInput:      "That file doesn't look like a photo of the table. Pick an image and try again.",
	KindDecode:            "Couldn't read that photo. Try picking another one.",
	KindEncode:            "Couldn't prepare that photo for upload. Try picking another one.",
	KindEmptyResponse:     "Coach is distracted by the jukebox. Try again!",
	KindMalformedResponse: "The coach mumbled something unreadable. Try again.",
	KindAnalysisFailed:    "The table is spinning! Try taking a clearer, steadier photo.",
	KindInternal:          "Something went wrong. Try again.",
}

var statusCodes = map[Kind]int{
	KindInvalidInput:      http.StatusBadRequest,
	KindDecode:            http.StatusUnprocessableEntity,
	KindEncode:            http.StatusUnprocessableEntity,
	KindEmptyResponse:     http.StatusBadGateway,
	KindMalformedResponse: http.StatusBadGateway,
	KindAnalysisFailed:    http.StatusBadGateway,
	KindInternal:          http.StatusInternalServerError,
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrDecode            = &Error{Kind: KindDecode}
	ErrEncode            = &Error{Kind: KindEncode}
	ErrEmptyResponse     = &Error{Kind: KindEmptyResponse}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrAnalysisFailed    = &Error{Kind: KindAnalysisFailed}
)

// Error is a structured pipeline error
type Error struct {
	Kind       Kind   `json:"error"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	Cause      error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = messages[e.Kind]
	}
	if e.Details != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Details)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, details string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Message:    messages[kind],
		Details:    details,
		StatusCode: statusCodes[kind],
		Cause:      cause,
	}
}

// NewInvalidInputError rejects unusable caller input before any work is done
func NewInvalidInputError(details string, cause error) *Error {
	return newError(KindInvalidInput, details, cause)
}

// NewDecodeError reports bytes that could not be interpreted as an image
func NewDecodeError(details string, cause error) *Error {
	return newError(KindDecode, details, cause)
}

// NewEncodeError reports a rasterization or encoding failure
func NewEncodeError(details string, cause error) *Error {
	return newError(KindEncode, details, cause)
}

// NewEmptyResponseError reports a successful call with no usable text
func NewEmptyResponseError(details string) *Error {
	return newError(KindEmptyResponse, details, nil)
}

// NewMalformedResponseError reports a reply that failed shape validation
func NewMalformedResponseError(details string, cause error) *Error {
	return newError(KindMalformedResponse, details, cause)
}

// NewAnalysisFailedError wraps a transport, auth or rate-limit failure
func NewAnalysisFailedError(details string, cause error) *Error {
	return newError(KindAnalysisFailed, details, cause)
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind checks if err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// UserMessage returns a non-empty message suitable for display
func UserMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return messages[KindOf(err)]
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

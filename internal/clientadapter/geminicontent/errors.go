package geminicontent

import (
	"net/http"

	"github.com/florianilch/clawd/internal/clientadapter"
)

// ErrorResponse is the Google API error envelope: {"error":{"code","message","status"}}.
type ErrorResponse struct {
	Err ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Compile-time check that ErrorResponse implements clientadapter.ErrorEnvelope
var _ clientadapter.ErrorEnvelope = (*ErrorResponse)(nil)

func (e *ErrorResponse) Error() string {
	return e.Err.Message
}

func (e *ErrorResponse) StatusCode() int {
	return e.Err.Code
}

// TranslateError shapes any failure as a Google API error envelope.
func (a *Adapter) TranslateError(err error) clientadapter.ErrorEnvelope {
	status, message := clientadapter.StatusOf(err)
	return &ErrorResponse{Err: ErrorDetail{
		Code:    status,
		Message: message,
		Status:  errorStatus(status),
	}}
}

// errorStatus maps HTTP status codes to canonical Google RPC status names.
func errorStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	default:
		return "INTERNAL"
	}
}

package chatcompletions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"
)

// streamingErrorPrefix is the prefix used by the OpenAI SDK when an SSE frame carries an error object.
const streamingErrorPrefix = "received error while streaming: "

// StatusError is a backend failure reduced to an HTTP status and a message.
// Client protocols map it onto their own error envelopes.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure means the credential was revoked and the
// current agent session must not continue.
func (e *StatusError) Fatal() bool {
	return e.StatusCode == http.StatusForbidden
}

// Classify converts any dispatch or stream error into a StatusError.
// Errors without a backend status (network, decoding) become 500.
func Classify(err error) *StatusError {
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = gjson.Get(apiErr.RawJSON(), "message").String()
		}
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &StatusError{StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}

	// Mid-stream error frames: the SDK embeds the JSON object in the error string.
	if payload, ok := strings.CutPrefix(err.Error(), streamingErrorPrefix); ok && gjson.Valid(payload) {
		status := int(gjson.Get(payload, "code").Int())
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		msg := gjson.Get(payload, "message").String()
		if msg == "" {
			msg = payload
		}
		return &StatusError{StatusCode: status, Message: msg, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &StatusError{StatusCode: http.StatusGatewayTimeout, Message: "backend request timed out", Err: err}
	}

	return &StatusError{StatusCode: http.StatusInternalServerError, Message: err.Error(), Err: err}
}

// isRetryable reports whether the backend answered 429 or any 5xx.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests ||
		(apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599)
}

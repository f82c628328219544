package clientadapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// TranslationErrorKind classifies translation failures.
type TranslationErrorKind string

const (
	// KindInvalidRequest means the client payload could not be translated.
	KindInvalidRequest TranslationErrorKind = "invalid request"
	// KindEmptyUpstreamResponse means the backend reply carried no completion choice.
	KindEmptyUpstreamResponse TranslationErrorKind = "empty upstream response"
)

// TranslationError is a malformed or incomplete payload that has no safe degraded output.
type TranslationError struct {
	Kind    TranslationErrorKind
	Message string
}

func (e *TranslationError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// InvalidRequest returns a TranslationError for a malformed client payload.
func InvalidRequest(format string, args ...any) *TranslationError {
	return &TranslationError{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// StatusOf reduces any error to an HTTP status and a client-visible message.
// Translation errors map to 400 (client payload) or 502 (backend payload);
// backend errors keep their classified status.
func StatusOf(err error) (int, string) {
	var translationErr *TranslationError
	if errors.As(err, &translationErr) {
		if translationErr.Kind == KindEmptyUpstreamResponse {
			return http.StatusBadGateway, translationErr.Error()
		}
		return http.StatusBadRequest, translationErr.Error()
	}

	statusErr := chatcompletions.Classify(err)
	return statusErr.StatusCode, statusErr.Message
}

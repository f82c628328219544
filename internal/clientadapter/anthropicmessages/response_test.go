package anthropicmessages

import (
	"errors"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

func ptr[T any](v T) *T { return &v }

func TestTranslateResponse(t *testing.T) {
	tests := []struct {
		name           string
		resp           *chatcompletions.Response
		wantContent    []any
		wantStopReason anthropic.StopReason
		wantUsage      Usage
	}{
		{
			name: "text",
			resp: &chatcompletions.Response{
				Choices: []chatcompletions.Choice{{
					Message:      chatcompletions.ResponseMessage{Role: chatcompletions.RoleAssistant, Content: ptr("Hello")},
					FinishReason: chatcompletions.FinishReasonStop,
				}},
				Usage: &chatcompletions.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
			},
			wantContent:    []any{TextBlock{Type: "text", Text: "Hello"}},
			wantStopReason: anthropic.StopReasonEndTurn,
			wantUsage:      Usage{InputTokens: 12, OutputTokens: 3},
		},
		{
			name: "text then tool calls",
			resp: &chatcompletions.Response{
				Choices: []chatcompletions.Choice{{
					Message: chatcompletions.ResponseMessage{
						Content: ptr("Let me check."),
						ToolCalls: []chatcompletions.ToolCall{
							chatcompletions.NewToolCall("call_1", "read", `{"path":"a.go"}`),
							chatcompletions.NewToolCall("call_2", "ls", `not json`),
						},
					},
					FinishReason: chatcompletions.FinishReasonToolCalls,
				}},
			},
			wantContent: []any{
				TextBlock{Type: "text", Text: "Let me check."},
				ToolUseBlock{Type: "tool_use", ID: "call_1", Name: "read", Input: map[string]any{"path": "a.go"}},
				ToolUseBlock{Type: "tool_use", ID: "call_2", Name: "ls", Input: map[string]any{}},
			},
			wantStopReason: anthropic.StopReasonToolUse,
		},
		{
			name: "length without content",
			resp: &chatcompletions.Response{
				Choices: []chatcompletions.Choice{{FinishReason: chatcompletions.FinishReasonLength}},
			},
			wantContent:    []any{},
			wantStopReason: anthropic.StopReasonMaxTokens,
		},
		{
			name: "content filter ends the turn",
			resp: &chatcompletions.Response{
				Choices: []chatcompletions.Choice{{
					Message:      chatcompletions.ResponseMessage{Refusal: ptr("I can't help with that.")},
					FinishReason: chatcompletions.FinishReasonContentFilter,
				}},
			},
			wantContent:    []any{TextBlock{Type: "text", Text: "I can't help with that."}},
			wantStopReason: anthropic.StopReasonEndTurn,
		},
	}

	adapter := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := adapter.TranslateResponse(tt.resp, "claude-sonnet-4-5")
			require.NoError(t, err)

			assert.Regexp(t, `^msg_[A-Za-z0-9]{24}$`, got.ID)
			assert.Equal(t, "message", got.Type)
			assert.Equal(t, "assistant", got.Role)
			assert.Equal(t, "claude-sonnet-4-5", got.Model)
			assert.Equal(t, tt.wantStopReason, got.StopReason)
			assert.Nil(t, got.StopSequence)
			assert.Equal(t, tt.wantUsage, got.Usage)
			if diff := cmp.Diff(tt.wantContent, got.Content); diff != "" {
				t.Errorf("content mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTranslateResponse_NoChoices(t *testing.T) {
	_, err := New(nil).TranslateResponse(&chatcompletions.Response{}, "m")

	var translationErr *clientadapter.TranslationError
	require.True(t, errors.As(err, &translationErr))
	assert.Equal(t, clientadapter.KindEmptyUpstreamResponse, translationErr.Kind)

	envelope := New(nil).TranslateError(err)
	assert.Equal(t, http.StatusBadGateway, envelope.StatusCode())
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantType   string
	}{
		{clientadapter.InvalidRequest("bad"), http.StatusBadRequest, "invalid_request_error"},
		{&chatcompletions.StatusError{StatusCode: http.StatusUnauthorized, Message: "no key"}, http.StatusUnauthorized, "authentication_error"},
		{&chatcompletions.StatusError{StatusCode: http.StatusForbidden, Message: "denied"}, http.StatusForbidden, "permission_error"},
		{&chatcompletions.StatusError{StatusCode: http.StatusNotFound, Message: "no model"}, http.StatusNotFound, "not_found_error"},
		{&chatcompletions.StatusError{StatusCode: http.StatusRequestEntityTooLarge, Message: "big"}, http.StatusRequestEntityTooLarge, "request_too_large"},
		{&chatcompletions.StatusError{StatusCode: http.StatusTooManyRequests, Message: "slow"}, http.StatusTooManyRequests, "rate_limit_error"},
		{&chatcompletions.StatusError{StatusCode: 529, Message: "busy"}, 529, "overloaded_error"},
		{&chatcompletions.StatusError{StatusCode: http.StatusBadGateway, Message: "gone"}, http.StatusBadGateway, "api_error"},
		{errors.New("boom"), http.StatusInternalServerError, "api_error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantType, func(t *testing.T) {
			envelope := New(nil).TranslateError(tt.err)
			assert.Equal(t, tt.wantStatus, envelope.StatusCode())

			resp, ok := envelope.(*ErrorResponse)
			require.True(t, ok)
			assert.Equal(t, "error", resp.Type)
			assert.Equal(t, tt.wantType, resp.Err.Type)
			assert.NotEmpty(t, resp.Err.Message)
		})
	}
}

package chatcompletions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-5",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
}`

// scriptedBackend answers each request with the next status in the script and
// records how many attempts were made.
type scriptedBackend struct {
	statuses []int
	attempts atomic.Int32
	lastBody atomic.Value
}

func (s *scriptedBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.attempts.Add(1)) - 1
	body, _ := io.ReadAll(r.Body)
	s.lastBody.Store(string(body))

	status := http.StatusOK
	if n < len(s.statuses) {
		status = s.statuses[n]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = io.WriteString(w, completionBody)
		return
	}
	_, _ = fmt.Fprintf(w, `{"error":{"message":"status %d","type":"test_error"}}`, status)
}

func newTestDispatcher(t *testing.T, backend http.Handler) *Dispatcher {
	t.Helper()

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)

	return NewDispatcher(client, BackoffPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil)
}

func testRequest() *Request {
	return &Request{
		Model:    "gpt-5",
		Messages: []Message{{Role: RoleUser, Content: TextContent("hi")}},
	}
}

func TestDispatcher_Complete(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantKind     OutcomeKind
		wantStatus   int
		wantAttempts int32
	}{
		{
			name:         "success on first attempt",
			wantKind:     OutcomeOK,
			wantAttempts: 1,
		},
		{
			name:         "recovers after transient 500",
			statuses:     []int{http.StatusInternalServerError},
			wantKind:     OutcomeOK,
			wantAttempts: 2,
		},
		{
			name:         "rate limits then server error stop at three attempts",
			statuses:     []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusInternalServerError},
			wantKind:     OutcomeError,
			wantStatus:   http.StatusBadGateway,
			wantAttempts: 3,
		},
		{
			name:         "mixed transient failures exhaust retries",
			statuses:     []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusServiceUnavailable},
			wantKind:     OutcomeError,
			wantStatus:   http.StatusBadGateway,
			wantAttempts: 3,
		},
		{
			name:         "bad request is not retried",
			statuses:     []int{http.StatusBadRequest},
			wantKind:     OutcomeError,
			wantStatus:   http.StatusBadRequest,
			wantAttempts: 1,
		},
		{
			name:         "forbidden is fatal and not retried",
			statuses:     []int{http.StatusForbidden},
			wantKind:     OutcomeFatal,
			wantStatus:   http.StatusForbidden,
			wantAttempts: 1,
		},
		{
			name:         "non-retryable failure after retry propagates immediately",
			statuses:     []int{http.StatusTooManyRequests, http.StatusUnauthorized},
			wantKind:     OutcomeError,
			wantStatus:   http.StatusUnauthorized,
			wantAttempts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &scriptedBackend{statuses: tt.statuses}
			dispatcher := newTestDispatcher(t, backend)

			out := dispatcher.Complete(t.Context(), testRequest())

			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.wantAttempts, backend.attempts.Load())
			if tt.wantKind == OutcomeOK {
				require.Nil(t, out.Err)
				require.NotNil(t, out.Value)
				require.Len(t, out.Value.Choices, 1)
				assert.Equal(t, "hello", *out.Value.Choices[0].Message.Content)
				assert.Equal(t, int64(5), out.Value.Usage.PromptTokens)
				return
			}
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.wantStatus, out.Err.StatusCode)
		})
	}
}

func TestDispatcher_RequestBody(t *testing.T) {
	backend := &scriptedBackend{}
	dispatcher := newTestDispatcher(t, backend)

	maxTokens := int64(1024)
	req := testRequest()
	req.MaxCompletionTokens = &maxTokens
	req.ReasoningEffort = ReasoningEffortHigh
	req.Thinking = &Thinking{Enabled: true, BudgetTokens: 2048}
	req.Tier = TierTop

	out := dispatcher.Complete(t.Context(), req)
	require.Equal(t, OutcomeOK, out.Kind)

	body := backend.lastBody.Load().(string)
	assert.Equal(t, "gpt-5", gjson.Get(body, "model").String())
	assert.Equal(t, "hi", gjson.Get(body, "messages.0.content").String())
	assert.Equal(t, int64(1024), gjson.Get(body, "max_completion_tokens").Int())
	assert.Equal(t, "high", gjson.Get(body, "reasoning_effort").String())
	assert.False(t, gjson.Get(body, "thinking").Exists())
	assert.False(t, gjson.Get(body, "Tier").Exists())
	assert.False(t, gjson.Get(body, "temperature").Exists())
}

func TestDispatcher_ContextCancelledDuringBackoff(t *testing.T) {
	backend := &scriptedBackend{statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}}

	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL + "/v1/"})
	require.NoError(t, err)
	dispatcher := NewDispatcher(client, BackoffPolicy{MaxAttempts: 3, InitialDelay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	out := dispatcher.Complete(ctx, testRequest())

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Equal(t, int32(1), backend.attempts.Load())
}

func TestDispatcher_Stream(t *testing.T) {
	frames := []string{
		`{"id":"c1","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"f","arguments":""}}]},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":1}"}}]},"finish_reason":null}]}`,
		`{"id":"c1","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"c1","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`,
	}

	var attempts atomic.Int32
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"busy"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	dispatcher := newTestDispatcher(t, backend)

	req := testRequest()
	req.Stream = true
	req.StreamOptions = &StreamOptions{IncludeUsage: true}
	out := dispatcher.Stream(t.Context(), req)
	require.Equal(t, OutcomeOK, out.Kind)
	defer out.Value.Close()

	var text strings.Builder
	var args strings.Builder
	var finish FinishReason
	var usage *Usage
	for chunk, err := range out.Value.Chunks() {
		require.NoError(t, err)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != nil {
				text.WriteString(*c.Delta.Content)
			}
			for _, tc := range c.Delta.ToolCalls {
				args.WriteString(tc.Function.Arguments)
			}
			if c.FinishReason != nil {
				finish = *c.FinishReason
			}
		}
	}

	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, `{"a":1}`, args.String())
	assert.Equal(t, FinishReasonToolCalls, finish)
	require.NotNil(t, usage)
	assert.Equal(t, int64(3), usage.CompletionTokens)
}

func TestDispatcher_StreamErrorFrame(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, `data: {"id":"c1","choices":[{"index":0,"delta":{"content":"x"}}]}`+"\n\n")
		_, _ = io.WriteString(w, `data: {"error":{"message":"model overloaded","code":503}}`+"\n\n")
	})
	dispatcher := newTestDispatcher(t, backend)

	out := dispatcher.Stream(t.Context(), testRequest())
	require.Equal(t, OutcomeOK, out.Kind)
	defer out.Value.Close()

	var chunks int
	var streamErr error
	for chunk, err := range out.Value.Chunks() {
		if err != nil {
			streamErr = err
			break
		}
		require.NotNil(t, chunk)
		chunks++
	}

	assert.Equal(t, 1, chunks)
	statusErr := Classify(streamErr)
	require.NotNil(t, statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "model overloaded", statusErr.Message)
}

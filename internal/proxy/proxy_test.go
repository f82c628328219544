package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/hooks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBackend records requests and replays canned results.
type fakeBackend struct {
	mu       sync.Mutex
	requests []*chatcompletions.Request

	response *chatcompletions.Response
	chunks   []*chatcompletions.Chunk
	// streamErr terminates the chunk sequence.
	streamErr error
	err       error
}

func (b *fakeBackend) record(req *chatcompletions.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
}

func (b *fakeBackend) Complete(_ context.Context, req *chatcompletions.Request) (*chatcompletions.Response, error) {
	b.record(req)
	if b.err != nil {
		return nil, b.err
	}
	return b.response, nil
}

func (b *fakeBackend) Stream(_ context.Context, req *chatcompletions.Request) (*chatcompletions.Stream, error) {
	b.record(req)
	if b.err != nil {
		return nil, b.err
	}
	var seq iter.Seq2[*chatcompletions.Chunk, error] = func(yield func(*chatcompletions.Chunk, error) bool) {
		for _, c := range b.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if b.streamErr != nil {
			yield(nil, b.streamErr)
		}
	}
	return chatcompletions.NewStream(seq, nil), nil
}

type readiness bool

func (r readiness) IsReady() bool { return bool(r) }

func ptr[T any](v T) *T { return &v }

func textResponse(text string) *chatcompletions.Response {
	return &chatcompletions.Response{
		ID: "chatcmpl-1",
		Choices: []chatcompletions.Choice{{
			Message:      chatcompletions.ResponseMessage{Role: chatcompletions.RoleAssistant, Content: ptr(text)},
			FinishReason: chatcompletions.FinishReasonStop,
		}},
		Usage: &chatcompletions.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}
}

func textChunks(texts ...string) []*chatcompletions.Chunk {
	chunks := make([]*chatcompletions.Chunk, 0, len(texts)+1)
	for _, text := range texts {
		chunks = append(chunks, &chatcompletions.Chunk{Choices: []chatcompletions.ChunkChoice{{
			Delta: chatcompletions.Delta{Content: ptr(text)},
		}}})
	}
	return append(chunks, &chatcompletions.Chunk{Choices: []chatcompletions.ChunkChoice{{
		FinishReason: ptr(chatcompletions.FinishReasonStop),
	}}})
}

func newTestProxy(t *testing.T, backend *fakeBackend, maxBytes int64) *Proxy {
	t.Helper()

	models, err := hooks.Family(hooks.FamilyGPT5)
	require.NoError(t, err)
	tiers, err := hooks.NewTierMapping(hooks.ClaudeTierRules, models, chatcompletions.TierUnknown, nil)
	require.NoError(t, err)
	geminiTiers, err := hooks.NewTierMapping(hooks.GeminiTierRules, models, chatcompletions.TierMid, nil)
	require.NoError(t, err)
	capability := hooks.NewCapabilityAdaptation(models, nil)

	p, err := New(Config{
		Dispatcher:      chatcompletions.NewDispatcher(backend, chatcompletions.BackoffPolicy{MaxAttempts: 1}, nil),
		ClaudeHooks:     hooks.NewPipeline(tiers, capability),
		GeminiHooks:     hooks.NewPipeline(geminiTiers, capability),
		Readiness:       readiness(true),
		MaxRequestBytes: maxBytes,
	})
	require.NoError(t, err)
	return p
}

func do(t *testing.T, p *Proxy, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const claudeRequest = `{
	"model": "claude-sonnet-4-5",
	"max_tokens": 1024,
	"temperature": 0.7,
	"messages": [{"role": "user", "content": "Hello"}]
}`

func TestMessages_NonStreaming(t *testing.T) {
	backend := &fakeBackend{response: textResponse("Hi there")}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1/messages", claudeRequest)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "message", body["type"])
	assert.Equal(t, "claude-sonnet-4-5", body["model"])
	assert.Equal(t, "end_turn", body["stop_reason"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Len(t, backend.requests, 1)
	sent := backend.requests[0]
	assert.Equal(t, "gpt-5", sent.Model)
	assert.Nil(t, sent.Temperature)
	assert.Equal(t, chatcompletions.ReasoningEffortLow, sent.ReasoningEffort)
}

func TestMessages_Streaming(t *testing.T) {
	backend := &fakeBackend{chunks: textChunks("Hel", "lo")}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1/messages",
		`{"model":"claude-3-5-haiku-latest","stream":true,"messages":[{"role":"user","content":"Hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	var names []string
	for line := range strings.Lines(out) {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, names)
	assert.Contains(t, out, `"text":"Hel"`)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "gpt-5-mini", backend.requests[0].Model)
	assert.True(t, backend.requests[0].Stream)
}

func TestMessages_RejectsBeforeBackend(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		maxBytes   int64
		wantStatus int
		wantType   string
	}{
		{"malformed JSON", `{"model":`, 0, http.StatusBadRequest, "invalid_request_error"},
		{"empty body", ``, 0, http.StatusBadRequest, "invalid_request_error"},
		{"missing messages", `{"model":"claude-sonnet-4-5"}`, 0, http.StatusBadRequest, "invalid_request_error"},
		{"too large", claudeRequest, 16, http.StatusRequestEntityTooLarge, "request_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{response: textResponse("unused")}
			p := newTestProxy(t, backend, tt.maxBytes)

			rec := do(t, p, http.MethodPost, "/v1/messages", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "error", body["type"])
			assert.Equal(t, tt.wantType, body["error"].(map[string]any)["type"])
			assert.Empty(t, backend.requests)
		})
	}
}

func TestMessages_CountTokens(t *testing.T) {
	backend := &fakeBackend{}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1/messages/count_tokens", claudeRequest)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Greater(t, decodeBody(t, rec)["input_tokens"], float64(0))
	assert.Empty(t, backend.requests)
}

func TestMessages_BackendErrorEnvelope(t *testing.T) {
	backend := &fakeBackend{err: &chatcompletions.StatusError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1/messages", claudeRequest)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	detail := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "rate_limit_error", detail["type"])
	assert.Equal(t, "slow down", detail["message"])

	select {
	case err := <-p.Fatal():
		t.Fatalf("unexpected fatal: %v", err)
	default:
	}
}

func TestFatal_ReportedOnce(t *testing.T) {
	denied := &chatcompletions.StatusError{StatusCode: http.StatusForbidden, Message: "key revoked"}
	backend := &fakeBackend{err: denied}
	p := newTestProxy(t, backend, 0)

	for range 3 {
		rec := do(t, p, http.MethodPost, "/v1/messages", claudeRequest)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "permission_error", decodeBody(t, rec)["error"].(map[string]any)["type"])
	}

	require.Len(t, p.Fatal(), 1)
	err := <-p.Fatal()
	assert.ErrorIs(t, err, denied)
}

func TestFatal_MidStream(t *testing.T) {
	backend := &fakeBackend{
		chunks:    textChunks("partial")[:1],
		streamErr: &chatcompletions.StatusError{StatusCode: http.StatusForbidden, Message: "key revoked"},
	}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1/messages",
		`{"model":"claude-opus-4-1","stream":true,"messages":[{"role":"user","content":"Hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error\n")
	assert.NotContains(t, rec.Body.String(), "event: message_stop")
	require.Len(t, p.Fatal(), 1)
}

const geminiRequest = `{
	"contents": [{"role": "user", "parts": [{"text": "Hello"}]}],
	"generationConfig": {"maxOutputTokens": 256}
}`

func TestGemini_GenerateContent(t *testing.T) {
	backend := &fakeBackend{response: textResponse("Hi there")}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1beta/models/gemini-2.5-flash:generateContent", geminiRequest)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	candidate := body["candidates"].([]any)[0].(map[string]any)
	assert.Equal(t, "STOP", candidate["finishReason"])
	part := candidate["content"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "Hi there", part["text"])

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "gpt-5-mini", backend.requests[0].Model)
}

func TestGemini_StreamGenerateContent(t *testing.T) {
	backend := &fakeBackend{chunks: textChunks("Hel", "lo")}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1beta/models/gemini-2.5-pro:streamGenerateContent?alt=sse", geminiRequest)

	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.NotContains(t, out, "event:")
	assert.Equal(t, 3, strings.Count(out, "data: "))
	assert.Contains(t, out, `"finishReason":"STOP"`)

	require.Len(t, backend.requests, 1)
	assert.Equal(t, "gpt-5", backend.requests[0].Model)
}

func TestGemini_Routes(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantKey    string
	}{
		{"count tokens", "/v1beta/models/gemini-2.5-pro:countTokens", http.StatusOK, "totalTokens"},
		{"v1 alias", "/v1/models/gemini-2.5-pro:countTokens", http.StatusOK, "totalTokens"},
		{"unknown action", "/v1beta/models/gemini-2.5-pro:embedContent", http.StatusNotFound, "error"},
		{"missing action", "/v1beta/models/gemini-2.5-pro", http.StatusBadRequest, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			p := newTestProxy(t, backend, 0)

			rec := do(t, p, http.MethodPost, tt.path, geminiRequest)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, decodeBody(t, rec), tt.wantKey)
			assert.Empty(t, backend.requests)
		})
	}
}

func TestGemini_ErrorEnvelope(t *testing.T) {
	backend := &fakeBackend{err: &chatcompletions.StatusError{StatusCode: http.StatusUnauthorized, Message: "bad key"}}
	p := newTestProxy(t, backend, 0)

	rec := do(t, p, http.MethodPost, "/v1beta/models/gemini-2.5-pro:generateContent", geminiRequest)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	detail := decodeBody(t, rec)["error"].(map[string]any)
	assert.Equal(t, "UNAUTHENTICATED", detail["status"])
	assert.Equal(t, float64(401), detail["code"])
}

func TestHealthEndpoints(t *testing.T) {
	p := newTestProxy(t, &fakeBackend{}, 0)

	rec := do(t, p, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = do(t, p, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "clawd", decodeBody(t, rec)["service"])

	assert.Equal(t, http.StatusOK, do(t, p, http.MethodGet, "/livez", "").Code)
	assert.Equal(t, http.StatusOK, do(t, p, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, p, http.MethodGet, "/nope", "").Code)
}

func TestReadiness_NotReady(t *testing.T) {
	p, err := New(Config{
		Dispatcher: chatcompletions.NewDispatcher(&fakeBackend{}, chatcompletions.DefaultBackoffPolicy(), nil),
		Readiness:  readiness(false),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, p, http.MethodGet, "/readyz", "").Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartShutdown(t *testing.T) {
	p := newTestProxy(t, &fakeBackend{}, 0)

	errCh, err := p.Start(t.Context(), "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))

	_, open := <-errCh
	assert.False(t, open)
}

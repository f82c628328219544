package clientadapter

import (
	"iter"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

// Adapter defines the contract for translating one client protocol to and
// from the Chat Completions backend protocol.
//
// Type parameters allow the interface to express translation contracts for different
// request/response shapes while maintaining compile-time type safety.
//
// Type parameters:
//   - TRequest:  Client-specific request structure
//   - TResponse: Client-specific response structure
//
// Implementations are stateless; per-stream state lives inside a single
// TranslateStream invocation.
type Adapter[TRequest, TResponse any] interface {
	// TranslateRequest builds the backend request. The returned request carries
	// the client model; hooks remap it afterwards.
	TranslateRequest(clientReq *TRequest) (*chatcompletions.Request, error)

	// TranslateResponse maps a completed backend response to the client envelope.
	// clientModel is the model name the client asked for.
	TranslateResponse(resp *chatcompletions.Response, clientModel string) (*TResponse, error)

	// TranslateStream consumes backend deltas in arrival order and yields client
	// events. The sequence always ends well-formed, including after an error.
	TranslateStream(chunks iter.Seq2[*chatcompletions.Chunk, error], clientModel string) iter.Seq[Event]

	// TranslateError shapes any failure as the client protocol's native error envelope.
	TranslateError(err error) ErrorEnvelope
}

// Event is one client-protocol streaming event.
// Name is written as the SSE event field when non-empty.
type Event struct {
	Name string
	Data any
}

// ErrorEnvelope is a client-protocol error body that knows its HTTP status.
type ErrorEnvelope interface {
	error
	StatusCode() int
}

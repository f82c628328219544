// Package chatcompletions is the backend side of the proxy: OpenAI Chat
// Completions wire types, a client for OpenAI-compatible and Azure OpenAI
// backends, and a Dispatcher that retries transient failures.
//
// The wire types are owned by this package rather than taken from the SDK.
// Client protocols translate into them, hooks mutate them, and the SDK only
// provides transport, SSE decoding and error decoding.
//
// # Dispatch outcomes
//
// Dispatcher returns a tagged Outcome instead of signalling failures out of
// band. OutcomeFatal marks a 403 from the backend: the credential was rejected
// and the launched agent session should be terminated.
//
//	out := dispatcher.Complete(ctx, req)
//	switch out.Kind {
//	case chatcompletions.OutcomeOK:
//		// use out.Value
//	case chatcompletions.OutcomeFatal:
//		// notify the supervisor, then report out.Err
//	default:
//		// report out.Err
//	}
package chatcompletions

// Package geminicontent serves the Gemini generateContent protocol on top of a
// Chat Completions backend, so Gemini CLI can talk to OpenAI-compatible models.
//
// Gemini identifies function calls by name while the backend requires ids.
// Ids are synthesized in one scan over the conversation before translation
// (see toolCallIDs) unless the client echoes ids it received from the proxy.
//
// Streams are plain SSE data frames of GenerateContentResponse objects: text
// is forwarded per delta, function calls and usage arrive in the final frame.
package geminicontent

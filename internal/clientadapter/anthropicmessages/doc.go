// Package anthropicmessages serves the Anthropic Messages protocol on top of a
// Chat Completions backend, so Claude Code can talk to OpenAI-compatible models.
//
// The adapter handles:
//
//   - Message transformation: the system prompt becomes a leading system message.
//     Tool results inside a user turn become tool messages that precede the
//     turn's remaining user content. Thinking blocks are dropped.
//
//   - Tool calling: tool_use blocks become function tool calls with compact JSON
//     arguments. Server tools have no backend equivalent and are skipped.
//
//   - Streaming: backend deltas become content_block_* events with mixed block
//     indices (text and tool_use share one counter). message_delta and
//     message_stop are held until the backend stream ends so trailing usage
//     is reported.
//
//   - Errors: every failure is shaped as {"type":"error","error":{...}}, both as
//     a response body and as a mid-stream error event.
package anthropicmessages

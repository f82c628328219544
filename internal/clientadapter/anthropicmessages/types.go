package anthropicmessages

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// Server-side request types. The SDK's param types are built for sending
// requests and cannot decode the string-or-array unions clients send, so
// inbound payloads use these types instead.

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        *SystemPrompt   `json:"system,omitempty"`
	MaxTokens     int64           `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int64          `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// SystemPrompt is a string or an array of text blocks.
type SystemPrompt struct {
	Text   string
	Blocks []ContentBlock
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	text, blocks, err := unmarshalStringOrBlocks(data)
	if err != nil {
		return fmt.Errorf("system: %w", err)
	}
	s.Text, s.Blocks = text, blocks
	return nil
}

// Message is one conversation turn.
type Message struct {
	Role    anthropic.MessageParamRole `json:"role"`
	Content MessageContent             `json:"content"`
}

// MessageContent is a string or an array of content blocks. Blocks is nil for the string form.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	text, blocks, err := unmarshalStringOrBlocks(data)
	if err != nil {
		return err
	}
	c.Text, c.Blocks = text, blocks
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

func unmarshalStringOrBlocks(data []byte) (string, []ContentBlock, error) {
	if len(data) == 0 {
		return "", nil, errors.New("empty content")
	}
	switch data[0] {
	case '"':
		var text string
		err := json.Unmarshal(data, &text)
		return text, nil, err
	case '[':
		blocks := []ContentBlock{}
		err := json.Unmarshal(data, &blocks)
		return "", blocks, err
	case 'n':
		return "", nil, nil
	default:
		return "", nil, fmt.Errorf("expected string or array, got %s", data)
	}
}

// Content block types.
const (
	blockTypeText             = "text"
	blockTypeImage            = "image"
	blockTypeToolUse          = "tool_use"
	blockTypeToolResult       = "tool_result"
	blockTypeThinking         = "thinking"
	blockTypeRedactedThinking = "redacted_thinking"
)

// ContentBlock is a tagged union over the block types clients send.
// Only the fields of the tagged type are populated.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   *MessageContent `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// ImageSource is base64 data or a remote URL.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Tool is a client tool declaration. Server tools carry a versioned Type and no schema.
type Tool struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToolChoice is {type: auto|any|none|tool, name?}.
type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

// ThinkingConfig is the extended thinking directive.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int64  `json:"budget_tokens,omitempty"`
}

// MessagesResponse is a non-streamed message. It is also the message
// payload of message_start.
type MessagesResponse struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Role         string               `json:"role"`
	Model        string               `json:"model"`
	Content      []any                `json:"content"`
	StopReason   anthropic.StopReason `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
	Usage        Usage                `json:"usage"`
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// TextBlock and ToolUseBlock are response content blocks. Fields are never
// omitted: content_block_start requires the empty text and input.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// CountTokensResponse is the body returned by POST /v1/messages/count_tokens.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

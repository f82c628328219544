package chatcompletions

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role is the author of a backend message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the reason the backend stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonFunctionCall  FinishReason = "function_call"
)

// Tier is a coarse model capability class shared by both client protocols.
type Tier string

const (
	TierUnknown Tier = ""
	TierSmall   Tier = "small"
	TierMid     Tier = "mid"
	TierTop     Tier = "top"
)

// Request is a Chat Completions request as sent to the backend.
//
// Thinking and Tier are pipeline metadata and never leave the process.
type Request struct {
	Model               string          `json:"model"`
	Messages            []Message       `json:"messages"`
	MaxCompletionTokens *int64          `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	Stop                []string        `json:"stop,omitempty"`
	Tools               []Tool          `json:"tools,omitempty"`
	ToolChoice          *ToolChoice     `json:"tool_choice,omitempty"`
	Stream              bool            `json:"stream,omitempty"`
	StreamOptions       *StreamOptions  `json:"stream_options,omitempty"`
	ReasoningEffort     ReasoningEffort `json:"reasoning_effort,omitempty"`

	Thinking *Thinking `json:"-"`
	Tier     Tier      `json:"-"`
}

// StreamOptions configures streamed responses.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Thinking is a client's extended thinking directive. The backend has no
// equivalent field, so hooks translate it and drop it.
type Thinking struct {
	Enabled      bool
	BudgetTokens int64
}

// Message is one entry of the backend conversation.
type Message struct {
	Role       Role            `json:"role"`
	Content    *MessageContent `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MessageContent is either a bare string or a list of typed parts.
// Parts takes precedence when non-nil.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent returns content holding a bare string.
func TextContent(text string) *MessageContent {
	return &MessageContent{Text: text}
}

// PartsContent returns content holding typed parts.
func PartsContent(parts ...ContentPart) *MessageContent {
	if parts == nil {
		parts = []ContentPart{}
	}
	return &MessageContent{Parts: parts}
}

// IsText reports whether the content is a bare string.
func (c *MessageContent) IsText() bool {
	return c != nil && c.Parts == nil
}

// String returns the concatenated text of the content.
func (c *MessageContent) String() string {
	if c == nil {
		return ""
	}
	if c.Parts == nil {
		return c.Text
	}
	var text string
	for _, p := range c.Parts {
		if p.Type == ContentPartTypeText {
			text += p.Text
		}
	}
	return text
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errors.New("empty message content")
	}
	switch data[0] {
	case '"':
		c.Parts = nil
		return json.Unmarshal(data, &c.Text)
	case '[':
		c.Text = ""
		c.Parts = []ContentPart{}
		return json.Unmarshal(data, &c.Parts)
	default:
		return fmt.Errorf("unsupported message content: %s", data)
	}
}

// ContentPartType discriminates content parts.
type ContentPartType string

const (
	ContentPartTypeText     ContentPartType = "text"
	ContentPartTypeImageURL ContentPartType = "image_url"
)

// ContentPart is one typed part of structured message content.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartTypeText, Text: text}
}

// ImagePart returns an image content part pointing at url, which may be a data URL.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentPartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall is a completed tool invocation on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// NewToolCall returns a function tool call. Arguments must be JSON text.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: arguments}}
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceMode is the string form of a tool choice directive.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
)

// ToolChoice is either a mode or a forced function. Function wins when set.
type ToolChoice struct {
	Mode     ToolChoiceMode
	Function string
}

func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Function != "" {
		return json.Marshal(struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		}{
			Type: "function",
			Function: struct {
				Name string `json:"name"`
			}{Name: t.Function},
		})
	}
	return json.Marshal(t.Mode)
}

// Response is a non-streamed completion.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

type ResponseMessage struct {
	Role      Role       `json:"role"`
	Content   *string    `json:"content"`
	Refusal   *string    `json:"refusal,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is token accounting reported by the backend.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Chunk is one incremental delta of a streamed completion.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object,omitempty"`
	Created int64         `json:"created,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        Delta         `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

type Delta struct {
	Role      Role            `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Refusal   *string         `json:"refusal,omitempty"`
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a streamed tool call. ID and name arrive
// with the first fragment of a call; later fragments carry arguments only.
type ToolCallDelta struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

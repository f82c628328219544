package anthropicmessages

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

const unsupportedImagePlaceholder = "[Unsupported image format]"

// unsupportedBlockPlaceholder renders a block type the backend cannot represent.
func unsupportedBlockPlaceholder(blockType string) string {
	return fmt.Sprintf("[Unsupported content block: %s]", blockType)
}

// toMessages flattens the system prompt and turns into backend messages.
func toMessages(system *SystemPrompt, turns []Message) ([]chatcompletions.Message, error) {
	messages := make([]chatcompletions.Message, 0, len(turns)+1)

	if text := systemText(system); text != "" {
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleSystem,
			Content: chatcompletions.TextContent(text),
		})
	}

	for i, turn := range turns {
		switch turn.Role {
		case anthropic.MessageParamRoleUser:
			messages = append(messages, fromUserContent(turn.Content)...)
		case anthropic.MessageParamRoleAssistant:
			messages = append(messages, fromAssistantContent(turn.Content))
		default:
			return nil, clientadapter.InvalidRequest("messages.%d: unsupported role %q", i, turn.Role)
		}
	}

	return messages, nil
}

// systemText joins the text segments of the system prompt with newlines.
func systemText(system *SystemPrompt) string {
	if system == nil {
		return ""
	}
	if system.Blocks == nil {
		return system.Text
	}
	texts := make([]string, 0, len(system.Blocks))
	for _, block := range system.Blocks {
		if block.Type == blockTypeText {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// fromUserContent converts a user turn. Tool results become one tool message
// each and are emitted before the remaining user content: the backend requires
// tool messages to directly follow the assistant message that issued the calls.
func fromUserContent(content MessageContent) []chatcompletions.Message {
	if content.Blocks == nil {
		return []chatcompletions.Message{{
			Role:    chatcompletions.RoleUser,
			Content: chatcompletions.TextContent(content.Text),
		}}
	}

	var messages []chatcompletions.Message
	var parts []chatcompletions.ContentPart

	for _, block := range content.Blocks {
		switch block.Type {
		case blockTypeText:
			parts = append(parts, chatcompletions.TextPart(block.Text))
		case blockTypeImage:
			parts = append(parts, fromImageSource(block.Source))
		case blockTypeToolResult:
			messages = append(messages, chatcompletions.Message{
				Role:       chatcompletions.RoleTool,
				ToolCallID: block.ToolUseID,
				Content:    chatcompletions.TextContent(toolResultText(block)),
			})
		case blockTypeThinking, blockTypeRedactedThinking:
			// Reasoning traces are not replayed to the backend.
		default:
			parts = append(parts, chatcompletions.TextPart(unsupportedBlockPlaceholder(block.Type)))
		}
	}

	switch {
	case len(parts) == 1 && parts[0].Type == chatcompletions.ContentPartTypeText:
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleUser,
			Content: chatcompletions.TextContent(parts[0].Text),
		})
	case len(parts) > 0:
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleUser,
			Content: chatcompletions.PartsContent(parts...),
		})
	case len(messages) == 0:
		// An empty block list still produces a turn so that role alternation is preserved.
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleUser,
			Content: chatcompletions.TextContent(""),
		})
	}

	return messages
}

// fromAssistantContent converts an assistant turn into a single message whose
// text is the concatenation of its text blocks. Without text, content is absent.
func fromAssistantContent(content MessageContent) chatcompletions.Message {
	msg := chatcompletions.Message{Role: chatcompletions.RoleAssistant}

	if content.Blocks == nil {
		msg.Content = chatcompletions.TextContent(content.Text)
		return msg
	}

	var text strings.Builder
	for _, block := range content.Blocks {
		switch block.Type {
		case blockTypeText:
			text.WriteString(block.Text)
		case blockTypeToolUse:
			msg.ToolCalls = append(msg.ToolCalls, chatcompletions.NewToolCall(
				block.ID,
				block.Name,
				clientadapter.CompactArguments(block.Input),
			))
		case blockTypeThinking, blockTypeRedactedThinking:
		default:
			text.WriteString(unsupportedBlockPlaceholder(block.Type))
		}
	}

	switch {
	case text.Len() > 0:
		msg.Content = chatcompletions.TextContent(text.String())
	case len(msg.ToolCalls) == 0:
		// The backend rejects assistant messages with neither content nor tool calls.
		msg.Content = chatcompletions.TextContent("")
	}

	return msg
}

// fromImageSource renders base64 images as data URLs and passes remote URLs through.
func fromImageSource(source *ImageSource) chatcompletions.ContentPart {
	if source == nil {
		return chatcompletions.TextPart(unsupportedImagePlaceholder)
	}
	switch source.Type {
	case "base64":
		return chatcompletions.ImagePart(fmt.Sprintf("data:%s;base64,%s", source.MediaType, source.Data))
	case "url":
		return chatcompletions.ImagePart(source.URL)
	default:
		return chatcompletions.TextPart(unsupportedImagePlaceholder)
	}
}

// toolResultText flattens tool result content. Tool messages only carry text,
// so text blocks are joined with newlines and other blocks are named.
func toolResultText(block ContentBlock) string {
	var text string
	switch {
	case block.Content == nil:
	case block.Content.Blocks == nil:
		text = block.Content.Text
	default:
		texts := make([]string, 0, len(block.Content.Blocks))
		for _, b := range block.Content.Blocks {
			if b.Type == blockTypeText {
				texts = append(texts, b.Text)
			} else {
				texts = append(texts, unsupportedBlockPlaceholder(b.Type))
			}
		}
		text = strings.Join(texts, "\n")
	}

	if block.IsError {
		return "Error: " + text
	}
	return text
}

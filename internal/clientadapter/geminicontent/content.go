package geminicontent

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
)

const unsupportedImagePlaceholder = "[Unsupported image format]"

func unsupportedPartPlaceholder(kind string) string {
	return fmt.Sprintf("[Unsupported content block: %s]", kind)
}

// toMessages flattens the system instruction and contents into backend messages.
func toMessages(system *genai.Content, contents []*genai.Content) []chatcompletions.Message {
	ids := scanToolCallIDs(contents)
	messages := make([]chatcompletions.Message, 0, len(contents)+1)

	if text := systemText(system); text != "" {
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleSystem,
			Content: chatcompletions.TextContent(text),
		})
	}

	for _, content := range contents {
		if content == nil {
			continue
		}
		if content.Role == genai.RoleModel {
			messages = append(messages, fromModelContent(content, ids))
			continue
		}
		messages = append(messages, fromUserContent(content, ids)...)
	}

	return messages
}

// systemText joins the text parts of the system instruction with newlines.
func systemText(system *genai.Content) string {
	if system == nil {
		return ""
	}
	texts := make([]string, 0, len(system.Parts))
	for _, part := range system.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// fromModelContent converts a model turn. Text parts are concatenated and
// function calls become tool calls with synthesized ids.
func fromModelContent(content *genai.Content, ids *toolCallIDs) chatcompletions.Message {
	msg := chatcompletions.Message{Role: chatcompletions.RoleAssistant}

	var text strings.Builder
	for _, part := range content.Parts {
		switch {
		case part == nil || part.Thought:
		case part.FunctionCall != nil:
			msg.ToolCalls = append(msg.ToolCalls, chatcompletions.NewToolCall(
				ids.callID(part.FunctionCall),
				part.FunctionCall.Name,
				compactObject(part.FunctionCall.Args),
			))
		case part.Text != "":
			text.WriteString(part.Text)
		}
	}

	if text.Len() > 0 || len(msg.ToolCalls) == 0 {
		msg.Content = chatcompletions.TextContent(text.String())
	}
	return msg
}

// fromUserContent converts a user or function turn. Function responses become
// tool messages, one per response, ahead of any remaining user content.
func fromUserContent(content *genai.Content, ids *toolCallIDs) []chatcompletions.Message {
	var messages []chatcompletions.Message
	var parts []chatcompletions.ContentPart
	var text strings.Builder

	flushText := func() {
		if text.Len() > 0 {
			parts = append(parts, chatcompletions.TextPart(text.String()))
			text.Reset()
		}
	}

	for _, part := range content.Parts {
		switch {
		case part == nil || part.Thought:
		case part.FunctionResponse != nil:
			messages = append(messages, chatcompletions.Message{
				Role:       chatcompletions.RoleTool,
				ToolCallID: ids.responseID(part.FunctionResponse),
				Content:    chatcompletions.TextContent(compactObject(part.FunctionResponse.Response)),
			})
		case part.InlineData != nil:
			flushText()
			parts = append(parts, fromBlob(part.InlineData))
		case part.FileData != nil:
			flushText()
			parts = append(parts, fromFileData(part.FileData))
		case part.FunctionCall != nil:
			flushText()
			parts = append(parts, chatcompletions.TextPart(unsupportedPartPlaceholder("functionCall")))
		case part.ExecutableCode != nil:
			flushText()
			parts = append(parts, chatcompletions.TextPart(unsupportedPartPlaceholder("executableCode")))
		case part.CodeExecutionResult != nil:
			flushText()
			parts = append(parts, chatcompletions.TextPart(unsupportedPartPlaceholder("codeExecutionResult")))
		default:
			// Adjacent text parts are joined without a separator.
			text.WriteString(part.Text)
		}
	}
	flushText()

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
		messages = append(messages, chatcompletions.Message{
			Role:    chatcompletions.RoleUser,
			Content: chatcompletions.TextContent(""),
		})
	}
	return messages
}

// fromBlob renders inline images as data URLs.
func fromBlob(blob *genai.Blob) chatcompletions.ContentPart {
	if !strings.HasPrefix(blob.MIMEType, "image/") {
		return chatcompletions.TextPart(unsupportedImagePlaceholder)
	}
	return chatcompletions.ImagePart("data:" + blob.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(blob.Data))
}

// fromFileData passes image and remote file URIs through.
func fromFileData(file *genai.FileData) chatcompletions.ContentPart {
	if strings.HasPrefix(file.MIMEType, "image/") ||
		strings.HasPrefix(file.FileURI, "https://") ||
		strings.HasPrefix(file.FileURI, "http://") {
		return chatcompletions.ImagePart(file.FileURI)
	}
	return chatcompletions.TextPart(unsupportedImagePlaceholder)
}

// compactObject encodes call arguments or a function response as JSON text.
func compactObject(obj map[string]any) string {
	if obj == nil {
		return "{}"
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(data)
}

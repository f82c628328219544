package anthropicmessages

import (
	"encoding/json"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

// emptyObjectSchema is used when a tool declares no input schema.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// fromTools converts client tool declarations to backend function tools.
// Server tools (web search, code execution) run on Anthropic's side and
// have no backend equivalent, so they are skipped.
func fromTools(tools []Tool) []chatcompletions.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]chatcompletions.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "" && tool.Type != "custom" {
			continue
		}

		params := tool.InputSchema
		if len(params) == 0 || string(params) == "null" {
			params = emptyObjectSchema
		}

		result = append(result, chatcompletions.Tool{
			Type: "function",
			Function: chatcompletions.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

// fromToolChoice maps auto→auto, any→required, none→none and tool→forced function.
func fromToolChoice(choice *ToolChoice) (*chatcompletions.ToolChoice, error) {
	if choice == nil {
		return nil, nil
	}

	switch choice.Type {
	case "auto":
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceAuto}, nil
	case "any":
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceRequired}, nil
	case "none":
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceNone}, nil
	case "tool":
		if choice.Name == "" {
			return nil, clientadapter.InvalidRequest("tool_choice: name is required for type tool")
		}
		return &chatcompletions.ToolChoice{Function: choice.Name}, nil
	default:
		return nil, clientadapter.InvalidRequest("tool_choice: unsupported type %q", choice.Type)
	}
}

// toToolUseBlocks converts backend tool calls to tool_use blocks, parsing arguments leniently.
func toToolUseBlocks(calls []chatcompletions.ToolCall) []any {
	blocks := make([]any, 0, len(calls))
	for _, call := range calls {
		blocks = append(blocks, ToolUseBlock{
			Type:  blockTypeToolUse,
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: clientadapter.ParseArguments(call.Function.Arguments),
		})
	}
	return blocks
}

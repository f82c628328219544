package geminicontent

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"google.golang.org/genai"

	"github.com/florianilch/clawd/internal/chatcompletions"
	"github.com/florianilch/clawd/internal/clientadapter"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// fromTools flattens function declarations into backend function tools.
func fromTools(tools []Tool) []chatcompletions.Tool {
	var result []chatcompletions.Tool
	for _, tool := range tools {
		for _, decl := range tool.FunctionDeclarations {
			result = append(result, chatcompletions.Tool{
				Type: "function",
				Function: chatcompletions.FunctionDefinition{
					Name:        decl.Name,
					Description: decl.Description,
					Parameters:  parametersSchema(decl),
				},
			})
		}
	}
	return result
}

// parametersSchema prefers parametersJsonSchema. OpenAPI-style parameters use
// upper-case type names (OBJECT, STRING) that JSON Schema validators reject.
func parametersSchema(decl FunctionDeclaration) json.RawMessage {
	if isObject(decl.ParametersJSONSchema) {
		return decl.ParametersJSONSchema
	}
	if isObject(decl.Parameters) {
		return lowercaseTypes(decl.Parameters)
	}
	return emptyObjectSchema
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && gjson.ValidBytes(raw) && gjson.ParseBytes(raw).IsObject()
}

// lowercaseTypes rewrites every string-valued "type" keyword in the schema.
func lowercaseTypes(schema json.RawMessage) json.RawMessage {
	var paths []string
	collectTypePaths(gjson.ParseBytes(schema), "", &paths)

	out := []byte(schema)
	for _, path := range paths {
		value := gjson.GetBytes(out, path).String()
		updated, err := sjson.SetBytes(out, path, strings.ToLower(value))
		if err != nil {
			return schema
		}
		out = updated
	}
	return out
}

func collectTypePaths(node gjson.Result, prefix string, paths *[]string) {
	switch {
	case node.IsObject():
		node.ForEach(func(key, value gjson.Result) bool {
			path := joinPath(prefix, escapePathKey(key.String()))
			if key.String() == "type" && value.Type == gjson.String && value.String() != strings.ToLower(value.String()) {
				*paths = append(*paths, path)
			} else {
				collectTypePaths(value, path, paths)
			}
			return true
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			collectTypePaths(value, joinPath(prefix, strconv.Itoa(i)), paths)
			i++
			return true
		})
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// escapePathKey escapes gjson/sjson path syntax in object keys.
func escapePathKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fromToolConfig maps AUTO, ANY and NONE. ANY restricted to a single
// function forces that function.
func fromToolConfig(config *genai.ToolConfig) (*chatcompletions.ToolChoice, error) {
	if config == nil || config.FunctionCallingConfig == nil {
		return nil, nil
	}
	fc := config.FunctionCallingConfig

	switch fc.Mode {
	case genai.FunctionCallingConfigModeAuto:
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceAuto}, nil
	case genai.FunctionCallingConfigModeAny:
		if len(fc.AllowedFunctionNames) == 1 {
			return &chatcompletions.ToolChoice{Function: fc.AllowedFunctionNames[0]}, nil
		}
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceRequired}, nil
	case genai.FunctionCallingConfigModeNone:
		return &chatcompletions.ToolChoice{Mode: chatcompletions.ToolChoiceNone}, nil
	case "", "MODE_UNSPECIFIED":
		return nil, nil
	default:
		return nil, clientadapter.InvalidRequest("toolConfig.functionCallingConfig: unsupported mode %q", fc.Mode)
	}
}

// toFunctionCallParts converts backend tool calls to functionCall parts,
// keeping the backend id so clients can echo it on the response.
func toFunctionCallParts(calls []chatcompletions.ToolCall) []*genai.Part {
	parts := make([]*genai.Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: clientadapter.ParseArguments(call.Function.Arguments),
		}})
	}
	return parts
}

package geminicontent

import (
	"encoding/json"

	"google.golang.org/genai"
)

// GenerateContentRequest is the body of POST /v1beta/models/{model}:generateContent
// and :streamGenerateContent. Model and Stream come from the URL.
//
// Conversation types are taken from genai. GenerationConfig and Tool are local:
// genai's float32 sampling fields lose precision on the way to the backend, and
// its Schema type cannot carry parametersJsonSchema verbatim.
type GenerateContentRequest struct {
	Contents          []*genai.Content  `json:"contents"`
	SystemInstruction *genai.Content    `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
	ToolConfig        *genai.ToolConfig `json:"toolConfig,omitempty"`

	Model  string `json:"-"`
	Stream bool   `json:"-"`
}

type GenerationConfig struct {
	MaxOutputTokens int64                 `json:"maxOutputTokens,omitempty"`
	Temperature     *float64              `json:"temperature,omitempty"`
	TopP            *float64              `json:"topP,omitempty"`
	TopK            *float64              `json:"topK,omitempty"`
	StopSequences   []string              `json:"stopSequences,omitempty"`
	ThinkingConfig  *genai.ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// Tool groups function declarations. Built-in tools (googleSearch,
// codeExecution) have no backend equivalent and are ignored.
type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// FunctionDeclaration carries either an OpenAPI-style schema (parameters)
// or a JSON Schema (parametersJsonSchema).
type FunctionDeclaration struct {
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Parameters           json.RawMessage `json:"parameters,omitempty"`
	ParametersJSONSchema json.RawMessage `json:"parametersJsonSchema,omitempty"`
}

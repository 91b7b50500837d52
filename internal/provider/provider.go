// Package provider implements the language-model completion client the
// planner, router, and classifiers talk to. Any OpenAI-compatible chat
// completions endpoint works (OpenAI, Groq, Together, Ollama, vLLM).
package provider

import (
	"context"
	"encoding/json"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Client is the narrow completion contract the rest of the engine
// depends on.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}

// Temp returns a pointer for CompletionRequest.Temperature.
func Temp(v float64) *float64 { return &v }

// ExtractFirstJSONObject scans text for the first balanced top-level
// JSON object and unmarshals it. Models routinely wrap JSON in prose or
// markdown fences; callers treat a miss as "no answer", not an error.
func ExtractFirstJSONObject(text string) (map[string]any, bool) {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					var out map[string]any
					if err := json.Unmarshal([]byte(text[start:i+1]), &out); err == nil {
						return out, true
					}
					i = len(text)
				}
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return nil, false
}

package backend

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is one model-requested tool invocation. The ID correlates
// the eventual result back into the conversation history.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult is the outcome of executing one ToolCallRequest. Exactly one
// result exists per request, whether the tool succeeded, failed, or was
// declined by the operator.
type ToolCallResult struct {
	CallID  string `json:"call_id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// Message is one entry in the conversation history.
//
// Assistant messages may carry tool calls alongside text; tool messages carry
// the results for a preceding assistant message's calls.
type Message struct {
	Role        Role              `json:"role"`
	Text        string            `json:"text,omitempty"`
	ToolCalls   []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResults []ToolCallResult  `json:"tool_results,omitempty"`
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage creates an assistant Message with optional tool calls.
func AssistantMessage(text string, calls []ToolCallRequest) Message {
	return Message{Role: RoleAssistant, Text: text, ToolCalls: calls}
}

// ToolResultsMessage creates a tool Message carrying execution results.
func ToolResultsMessage(results []ToolCallResult) Message {
	return Message{Role: RoleTool, ToolResults: results}
}

// ToolSpec describes a callable tool to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage tracks token consumption for a round.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// TranscriptText flattens a history slice into readable text, used for
// debug output and size estimates.
func TranscriptText(history []Message) string {
	var sb strings.Builder
	for _, m := range history {
		if m.Text != "" {
			sb.WriteString(m.Text)
			sb.WriteByte('\n')
		}
		for _, r := range m.ToolResults {
			sb.WriteString(r.Output)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run a tool. Arguments hold the raw JSON
// object produced by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Message is one entry of the conversation sent to the model. Assistant
// messages may carry tool calls; tool messages answer the call named by
// ToolCallID.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolDecl advertises a callable tool. Parameters is a JSON schema object.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDecl
}

// Response is either a final text answer (no ToolCalls) or a set of tool
// call requests, optionally with some accompanying text.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

package session

import (
	"github.com/haivivi/playground/pkg/genx"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one persisted history entry.
type Message struct {
	Role       string     `json:"role" dynamodbav:"role"`
	Content    string     `json:"content,omitempty" dynamodbav:"content,omitempty"`
	Name       string     `json:"name,omitempty" dynamodbav:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" dynamodbav:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty" dynamodbav:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string `json:"id" dynamodbav:"id"`
	Name      string `json:"name" dynamodbav:"name"`
	Arguments string `json:"arguments,omitempty" dynamodbav:"arguments,omitempty"`
}

// History is the ordered conversation of one user.
type History []Message

// record is the on-disk layout of a history.
type record struct {
	Messages History `json:"messages"`
}

// ToGenx converts the history into model messages. An assistant message
// with both text and tool calls becomes a text message followed by one
// tool call message per call.
func (h History) ToGenx() []*genx.Message {
	out := make([]*genx.Message, 0, len(h))
	for _, m := range h {
		switch m.Role {
		case RoleUser:
			out = append(out, &genx.Message{Role: genx.RoleUser, Name: m.Name, Payload: genx.Contents{genx.Text(m.Content)}})
		case RoleAssistant:
			if m.Content != "" || len(m.ToolCalls) == 0 {
				out = append(out, &genx.Message{Role: genx.RoleModel, Name: m.Name, Payload: genx.Contents{genx.Text(m.Content)}})
			}
			for _, tc := range m.ToolCalls {
				out = append(out, &genx.Message{
					Role: genx.RoleModel,
					Name: m.Name,
					Payload: &genx.ToolCall{
						ID:       tc.ID,
						FuncCall: &genx.FuncCall{Name: tc.Name, Arguments: tc.Arguments},
					},
				})
			}
		case RoleTool:
			out = append(out, &genx.Message{Role: genx.RoleTool, Name: m.Name, Payload: &genx.ToolResult{ID: m.ToolCallID, Result: m.Content}})
		}
	}
	return out
}

// FromGenx converts model messages back into history entries. Tool call
// messages are folded into the assistant message right before them, so an
// assistant text followed by its calls stays one entry.
func FromGenx(msgs []*genx.Message) History {
	out := make(History, 0, len(msgs))
	for _, m := range msgs {
		switch p := m.Payload.(type) {
		case genx.Contents:
			role := RoleUser
			if m.Role == genx.RoleModel {
				role = RoleAssistant
			}
			out = append(out, Message{Role: role, Name: m.Name, Content: p.String()})
		case *genx.ToolCall:
			tc := ToolCall{ID: p.ID}
			if p.FuncCall != nil {
				tc.Name = p.FuncCall.Name
				tc.Arguments = p.FuncCall.Arguments
			}
			if n := len(out); n > 0 && out[n-1].Role == RoleAssistant {
				out[n-1].ToolCalls = append(out[n-1].ToolCalls, tc)
				continue
			}
			out = append(out, Message{Role: RoleAssistant, Name: m.Name, ToolCalls: []ToolCall{tc}})
		case *genx.ToolResult:
			out = append(out, Message{Role: RoleTool, Name: m.Name, ToolCallID: p.ID, Content: p.Result})
		}
	}
	return out
}

package genx

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

var _ ModelContext = (*modelContext)(nil)

type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message

	Tools []Tool

	Params *ModelParams
}

func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(mcb.Prompts),
		messages: slices.Clone(mcb.Messages),
		tools:    slices.Clone(mcb.Tools),
		params:   mcb.Params,
	}
}

func (mcb *ModelContextBuilder) lastPrompt() (*Prompt, bool) {
	if len(mcb.Prompts) == 0 {
		return nil, false
	}
	return mcb.Prompts[len(mcb.Prompts)-1], true
}

// AddPrompt appends prompt; consecutive prompts with the same name are
// joined by a newline.
func (mcb *ModelContextBuilder) AddPrompt(prompt *Prompt) {
	if p, ok := mcb.lastPrompt(); ok && p.Name == prompt.Name {
		if p.Text != "" {
			p.Text += "\n" + prompt.Text
		} else {
			p.Text = prompt.Text
		}
		return
	}
	mcb.Prompts = append(mcb.Prompts, prompt)
}

func (mcb *ModelContextBuilder) PromptText(name, text string) {
	mcb.AddPrompt(&Prompt{
		Name: name,
		Text: text,
	})
}

func (mcb *ModelContextBuilder) lastMessage() (*Message, bool) {
	if len(mcb.Messages) == 0 {
		return nil, false
	}
	return mcb.Messages[len(mcb.Messages)-1], true
}

// AddMessage appends msg. A content message from the same role and name as
// the previous content message is merged into it.
func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	if m, ok := mcb.lastMessage(); ok {
		if p, ok := m.Payload.(Contents); ok && msg.Role == m.Role && msg.Name == m.Name {
			if more, ok := msg.Payload.(Contents); ok {
				m.Payload = append(slices.Clone(p), more...)
				return
			}
		}
	}
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) AddTool(tool Tool) {
	mcb.Tools = append(mcb.Tools, tool)
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleUser,
		Name:    name,
		Payload: Contents{Text(text)},
	})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{
		Role:    RoleModel,
		Name:    name,
		Payload: Contents{Text(text)},
	})
}

func (mcb *ModelContextBuilder) ToolCall(name string, call *ToolCall) {
	mcb.Messages = append(mcb.Messages, &Message{
		Role:    RoleModel,
		Name:    name,
		Payload: call,
	})
}

func (mcb *ModelContextBuilder) ToolResult(name, id, result string) {
	mcb.Messages = append(mcb.Messages, &Message{
		Role:    RoleTool,
		Name:    name,
		Payload: &ToolResult{ID: id, Result: result},
	})
}

// ResultString converts a tool result to the text sent back to the model.
// Strings pass through; anything else is JSON encoded.
func ResultString(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool call result to json string: %w", err)
	}
	return string(b), nil
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message

	tools []Tool

	params *ModelParams
}

func (mctx *modelContext) Prompts() iter.Seq[*Prompt] {
	return slices.Values(mctx.prompts)
}

func (mctx *modelContext) Messages() iter.Seq[*Message] {
	return slices.Values(mctx.messages)
}

func (mctx *modelContext) Tools() iter.Seq[Tool] {
	return slices.Values(mctx.tools)
}

func (mctx *modelContext) Params() *ModelParams {
	return mctx.params
}

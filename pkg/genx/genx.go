package genx

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// ModelParams are the sampling parameters of a request. When set,
// Temperature is always sent, so zero selects greedy decoding. MaxTokens
// and TopP are omitted when zero.
type ModelParams struct {
	MaxTokens   int     `json:"max_tokens,omitzero" msgpack:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitzero" msgpack:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitzero" msgpack:"top_p,omitempty"`
}

type Prompt struct {
	Name string
	Text string
}

type Tool interface {
	isTool()
}

type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	Tools() iter.Seq[Tool]

	Params() *ModelParams
}

// Completion is the result of one model round.
type Completion struct {
	// Text is the assistant reply. It may be set together with ToolCalls.
	Text string

	// ToolCalls requested by the model, in order.
	ToolCalls []*ToolCall

	Usage Usage
}

func (c *Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}

type Generator interface {
	Complete(ctx context.Context, mctx ModelContext) (*Completion, error)
}

type Usage struct {
	// Number of tokens in the prompt.
	PromptTokenCount int64

	// Number of tokens generated.
	GeneratedTokenCount int64
}

func (u Usage) Total() int64 {
	return u.PromptTokenCount + u.GeneratedTokenCount
}

func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokenCount:    u.PromptTokenCount + o.PromptTokenCount,
		GeneratedTokenCount: u.GeneratedTokenCount + o.GeneratedTokenCount,
	}
}

// String formats u for logs, e.g. "prompt=12 generated=3 total=15".
func (u Usage) String() string {
	return fmt.Sprintf("prompt=%d generated=%d total=%d", u.PromptTokenCount, u.GeneratedTokenCount, u.Total())
}

// InspectMessage renders msg for logs and debugging.
func InspectMessage(msg *Message) string {
	if msg == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s", msg.Role.String())
	if msg.Name != "" {
		fmt.Fprintf(&sb, " (%s)", msg.Name)
	}
	sb.WriteByte('\n')
	switch p := msg.Payload.(type) {
	case Contents:
		fmt.Fprintln(&sb, p.String())
	case *ToolCall:
		fmt.Fprintf(&sb, "[%s]\n", p.ID)
		if p.FuncCall != nil {
			fmt.Fprintf(&sb, "%s(%s)\n", p.FuncCall.Name, p.FuncCall.Arguments)
		}
	case *ToolResult:
		fmt.Fprintf(&sb, "[%s]\n", p.ID)
		fmt.Fprintln(&sb, p.Result)
	}
	return sb.String()
}

package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/haivivi/playground/pkg/agent"
	"github.com/haivivi/playground/pkg/genx"
)

const defaultNestedSystemPrompt = "You are a focused sub-agent. Answer the task directly and concisely."

// Nested is what the nested agent needs from the live configuration.
type Nested struct {
	Generator genx.Generator
	Tools     []*genx.FuncTool
	Params    *genx.ModelParams
}

// Resolver yields the configuration current at call time.
type Resolver interface {
	ResolveNested() Nested
}

type nestedArgs struct {
	Prompt       string `json:"prompt" jsonschema:"task for the sub-agent"`
	SystemPrompt string `json:"system_prompt,omitempty" jsonschema:"optional system prompt for the sub-agent"`
}

// NewNestedAgent returns a tool that runs an isolated agent with an empty
// history. The generator and tools come from r on every call, so settings
// or tool changes apply without rebuilding the tool. The sub-agent never
// receives this tool itself.
func NewNestedAgent(r Resolver, runner *agent.Runner) *genx.FuncTool {
	if runner == nil {
		runner = &agent.Runner{}
	}
	return genx.MustNewFuncTool[nestedArgs](
		NestedAgentName,
		"Create an isolated agent instance using OpenRouter (OpenAI-compatible) with the current model and tools, and return its answer.",
		genx.InvokeFunc[nestedArgs](func(ctx context.Context, _ *genx.FuncCall, arg nestedArgs) (any, error) {
			if strings.TrimSpace(arg.Prompt) == "" {
				return nil, errors.New("prompt is required")
			}
			n := r.ResolveNested()
			tools := make([]*genx.FuncTool, 0, len(n.Tools))
			for _, t := range n.Tools {
				if t.Name != NestedAgentName {
					tools = append(tools, t)
				}
			}
			sys := arg.SystemPrompt
			if sys == "" {
				sys = defaultNestedSystemPrompt
			}
			res, err := runner.Run(ctx, n.Generator, agent.Request{
				SystemPrompt: sys,
				Prompt:       arg.Prompt,
				Tools:        tools,
				Params:       n.Params,
			})
			if err != nil {
				return nil, err
			}
			return res.Reply, nil
		}),
	)
}

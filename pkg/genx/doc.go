// Package genx is a provider-neutral model layer for tool-calling chat.
//
// # Core Types
//
// Message is one entry of a conversation:
//   - Role: The producer of this message (user, model, or tool)
//   - Name: The name of the producer (optional)
//   - Payload: Contents (text parts), a *ToolCall, or a *ToolResult
//
// ModelContext is everything a Generator sees for one completion: system
// prompts, messages, tools and sampling parameters. Build one with
// ModelContextBuilder.
//
// Generator turns a ModelContext into a Completion:
//
//	type Generator interface {
//	    Complete(ctx context.Context, mctx ModelContext) (*Completion, error)
//	}
//
// A Completion carries either assistant text or tool calls. Tool calls
// returned by a generator are bound to the FuncTool they name, so callers
// can run them with ToolCall.Invoke.
//
// OpenAIGenerator implements Generator for any OpenAI-compatible chat
// completions endpoint (OpenAI, OpenRouter, vLLM, ...).
package genx

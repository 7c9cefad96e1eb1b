// Package agent runs the tool-calling loop for one conversation turn.
//
// Run builds a model context from the system prompt, prior history, the new
// user prompt and the selected tools, then alternates model rounds and tool
// invocations until the model answers without calling a tool:
//
//	prompt → complete → tool calls → results → complete → ... → reply
//
// Tool failures do not stop the loop; the model sees "Error: ..." as the
// tool result and may recover. The loop is capped at Runner.MaxRounds.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/playground/pkg/genx"
)

// DefaultMaxRounds caps model rounds per turn.
const DefaultMaxRounds = 8

// ErrMaxRounds is returned when the model keeps calling tools past the cap.
var ErrMaxRounds = errors.New("agent: max tool rounds exceeded")

// Request is the input of one turn.
type Request struct {
	SystemPrompt string

	// History is the prior conversation. It is not modified.
	History []*genx.Message

	Prompt string

	Tools []*genx.FuncTool

	Params *genx.ModelParams
}

// Result is the output of one turn.
type Result struct {
	// Reply is the final assistant text.
	Reply string

	// Messages is History followed by every message this turn produced.
	Messages []*genx.Message

	Metrics *Metrics
}

// Runner runs turns. The zero value is ready to use.
type Runner struct {
	MaxRounds int
	Logger    *slog.Logger
}

// Run runs one turn with a zero Runner.
func Run(ctx context.Context, gen genx.Generator, req Request) (*Result, error) {
	return (&Runner{}).Run(ctx, gen, req)
}

func (r *Runner) maxRounds() int {
	if r.MaxRounds > 0 {
		return r.MaxRounds
	}
	return DefaultMaxRounds
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run executes the loop against gen.
func (r *Runner) Run(ctx context.Context, gen genx.Generator, req Request) (*Result, error) {
	if gen == nil {
		return nil, errors.New("agent: no generator")
	}
	log := r.logger()
	start := time.Now()
	metrics := newMetrics()

	mcb := &genx.ModelContextBuilder{Params: req.Params}
	if req.SystemPrompt != "" {
		mcb.PromptText("", req.SystemPrompt)
	}
	for _, m := range req.History {
		cp := *m
		mcb.AddMessage(&cp)
	}
	for _, t := range req.Tools {
		mcb.AddTool(t)
	}

	var produced []*genx.Message
	emit := func(m *genx.Message) {
		produced = append(produced, m)
		cp := *m
		mcb.AddMessage(&cp)
		if log.Enabled(ctx, slog.LevelDebug) {
			log.Debug("agent message", "message", genx.InspectMessage(m))
		}
	}
	emit(&genx.Message{Role: genx.RoleUser, Payload: genx.Contents{genx.Text(req.Prompt)}})

	log.Debug("agent turn", "tools", len(req.Tools), "history", len(req.History))

	var reply string
	for round := 1; ; round++ {
		if round > r.maxRounds() {
			return nil, fmt.Errorf("%w: %d", ErrMaxRounds, r.maxRounds())
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		comp, err := gen.Complete(ctx, mcb.Build())
		if err != nil {
			return nil, fmt.Errorf("agent: round %d: %w", round, err)
		}
		metrics.Cycles++
		metrics.Usage = metrics.Usage.Add(comp.Usage)

		calls := dedupe(comp.ToolCalls)
		if len(calls) == 0 {
			reply = comp.Text
			emit(&genx.Message{Role: genx.RoleModel, Payload: genx.Contents{genx.Text(reply)}})
			log.Debug("agent finish", "round", round, "reply_len", len(reply), "usage", metrics.Usage)
			break
		}
		if comp.Text != "" {
			emit(&genx.Message{Role: genx.RoleModel, Payload: genx.Contents{genx.Text(comp.Text)}})
		}
		for _, call := range calls {
			emit(&genx.Message{Role: genx.RoleModel, Payload: call})
		}
		for _, call := range calls {
			result := r.invoke(ctx, call, metrics)
			emit(&genx.Message{Role: genx.RoleTool, Payload: &genx.ToolResult{ID: call.ID, Result: result}})
		}
	}

	metrics.Latency = time.Since(start)
	messages := make([]*genx.Message, 0, len(req.History)+len(produced))
	messages = append(messages, req.History...)
	messages = append(messages, produced...)
	return &Result{
		Reply:    reply,
		Messages: messages,
		Metrics:  metrics,
	}, nil
}

// invoke runs one tool call and returns the text handed back to the model.
func (r *Runner) invoke(ctx context.Context, call *genx.ToolCall, m *Metrics) (result string) {
	name := ""
	if call.FuncCall != nil {
		name = call.FuncCall.Name
	}
	log := r.logger().With("tool", name, "call_id", call.ID)
	start := time.Now()
	failed := false
	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", p)
			result = fmt.Sprintf("Error: tool %s panicked: %v", name, p)
			failed = true
		}
		m.recordTool(name, time.Since(start), failed)
	}()

	log.Info("tool call", "input", argumentsOf(call))
	v, err := call.Invoke(ctx)
	if err != nil {
		failed = true
		log.Warn("tool error", "err", err)
		return "Error: " + err.Error()
	}
	s, err := genx.ResultString(v)
	if err != nil {
		failed = true
		return "Error: " + err.Error()
	}
	log.Debug("tool result", "result_len", len(s))
	return s
}

func argumentsOf(call *genx.ToolCall) string {
	if call.FuncCall == nil {
		return ""
	}
	return call.FuncCall.Arguments
}

// dedupe drops repeated call ids within one response; some models emit the
// same call twice.
func dedupe(calls []*genx.ToolCall) []*genx.ToolCall {
	if len(calls) < 2 {
		return calls
	}
	seen := make(map[string]bool, len(calls))
	out := make([]*genx.ToolCall, 0, len(calls))
	for _, c := range calls {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

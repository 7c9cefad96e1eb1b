package genx

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

var _ Tool = (*FuncTool)(nil)

type FuncToolOption[ArgType any] interface {
	applyToFuncTool(*FuncTool)
}

// InvokeFunc is the body of a tool. The raw JSON arguments are decoded into
// T before fn is called; malformed JSON is repaired when possible.
type InvokeFunc[T any] func(ctx context.Context, call *FuncCall, arg T) (any, error)

func (fn InvokeFunc[T]) applyToFuncTool(t *FuncTool) {
	t.Invoke = func(ctx context.Context, call *FuncCall, arg string) (any, error) {
		var v T
		if err := decodeArguments(arg, &v); err != nil {
			return nil, err
		}
		return fn(ctx, call, v)
	}
}

type FuncTool struct {
	Name        string
	Description string
	Argument    *jsonschema.Schema

	Invoke InvokeFunc[string]
}

// NewFuncCall returns a call of tool with the given raw JSON arguments.
func (tool *FuncTool) NewFuncCall(args string) *FuncCall {
	return &FuncCall{
		Name:      tool.Name,
		Arguments: args,

		tool: tool,
	}
}

func (*FuncTool) isTool() {}

func NewFuncTool[ArgType any](name, description string, opts ...FuncToolOption[ArgType]) (*FuncTool, error) {
	tool := &FuncTool{
		Name:        name,
		Description: description,
	}
	for _, opt := range opts {
		opt.applyToFuncTool(tool)
	}
	arg, err := jsonschema.For[ArgType](nil)
	if err != nil {
		return nil, fmt.Errorf("genx: schema for tool %s: %w", name, err)
	}
	tool.Argument = arg

	if tool.Invoke == nil {
		tool.Invoke = func(ctx context.Context, _ *FuncCall, arg string) (any, error) {
			var v ArgType
			if err := decodeArguments(arg, &v); err != nil {
				return nil, err
			}
			return &v, nil
		}
	}
	return tool, nil
}

func MustNewFuncTool[ArgType any](name, description string, opts ...FuncToolOption[ArgType]) *FuncTool {
	tool, err := NewFuncTool(name, description, opts...)
	if err != nil {
		panic(err)
	}
	return tool
}

func decodeArguments(arg string, v any) error {
	if arg == "" {
		arg = "{}"
	}
	if err := unmarshalJSON([]byte(arg), v); err != nil {
		return fmt.Errorf("unmarshal %q error: %w", arg, err)
	}
	return nil
}

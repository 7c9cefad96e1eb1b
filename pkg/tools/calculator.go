package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/haivivi/playground/pkg/genx"
)

type calculatorArgs struct {
	Expression string `json:"expression" jsonschema:"arithmetic expression, e.g. (2 + 3) * 4.5 or math.greatest(1, 7)"`
}

// calcCostLimit bounds evaluation work per expression.
const calcCostLimit = 10000

// NewCalculator returns a tool evaluating arithmetic with CEL. Integer and
// floating point literals do not mix: write 2.0 / 4.0 for a fractional
// result.
func NewCalculator() (*genx.FuncTool, error) {
	env, err := cel.NewEnv(ext.Math())
	if err != nil {
		return nil, fmt.Errorf("calculator: %w", err)
	}
	return genx.NewFuncTool[calculatorArgs](
		CalculatorName,
		"Evaluate an arithmetic expression (+ - * / %, parentheses, math.greatest/least/abs/ceil/floor/round). Integer and float literals cannot be mixed.",
		genx.InvokeFunc[calculatorArgs](func(ctx context.Context, _ *genx.FuncCall, arg calculatorArgs) (any, error) {
			return evaluate(ctx, env, arg.Expression)
		}),
	)
}

func evaluate(ctx context.Context, env *cel.Env, expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", errors.New("calculator: empty expression")
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return "", fmt.Errorf("calculator: %w", iss.Err())
	}
	prg, err := env.Program(ast, cel.CostLimit(calcCostLimit))
	if err != nil {
		return "", fmt.Errorf("calculator: %w", err)
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{})
	if err != nil {
		return "", fmt.Errorf("calculator: %w", err)
	}
	switch v := out.Value().(type) {
	case int64, uint64, float64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("calculator: result is %s, not a number", out.Type().TypeName())
	}
}

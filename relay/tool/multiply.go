package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/mediminds/voicerelay/relay/contract"
)

const ToolMultiply = "multiply"

type MultiplyOutput struct {
	A           float64 `json:"a"`
	B           float64 `json:"b"`
	Product     float64 `json:"product"`
	Calculation string  `json:"calculation"`
}

// RegisterMultiply adds the multiplication tool. The executor is pure:
// no I/O, and the only failure mode is numeric coercion.
func RegisterMultiply(r *Registry) error {
	info := &schema.ToolInfo{
		Name: ToolMultiply,
		Desc: "Multiplies two numbers together. Useful for mathematical calculations.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"a": {Type: schema.Number, Desc: "The first number to multiply", Required: true},
			"b": {Type: schema.Number, Desc: "The second number to multiply", Required: true},
		}),
	}
	return r.Define(info, executeMultiply)
}

func executeMultiply(_ context.Context, args map[string]any) (contractx.ToolResult, error) {
	a, err := coerceNumber(args["a"])
	if err != nil {
		return contractx.ToolResult{Tool: ToolMultiply},
			fmt.Errorf("%w: a: %v", contractx.ErrInvalidArguments, err)
	}
	b, err := coerceNumber(args["b"])
	if err != nil {
		return contractx.ToolResult{Tool: ToolMultiply},
			fmt.Errorf("%w: b: %v", contractx.ErrInvalidArguments, err)
	}

	product := a * b
	rendered := formatNumber(product)
	return contractx.ToolResult{
		Tool:   ToolMultiply,
		Output: rendered,
		Result: MultiplyOutput{
			A:           a,
			B:           b,
			Product:     product,
			Calculation: fmt.Sprintf("%s × %s = %s", formatNumber(a), formatNumber(b), rendered),
		},
	}, nil
}

// coerceNumber accepts the numeric encodings JSON decoding and upstream
// argument strings actually produce.
func coerceNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

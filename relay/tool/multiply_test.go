package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	contractx "github.com/mediminds/voicerelay/relay/contract"
)

func TestExecuteMultiply(t *testing.T) {
	t.Parallel()

	out, err := executeMultiply(context.Background(), map[string]any{"a": float64(3), "b": float64(4)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Output != "12" {
		t.Fatalf("unexpected output: %q", out.Output)
	}
	result, ok := out.Result.(MultiplyOutput)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if result.Product != 12 {
		t.Fatalf("unexpected product: %v", result.Product)
	}
	if result.Calculation != "3 × 4 = 12" {
		t.Fatalf("unexpected calculation: %q", result.Calculation)
	}
}

func TestExecuteMultiplyCoercion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b any
		want string
	}{
		{"strings", "2", "5", "10"},
		{"json number", json.Number("1.5"), float64(2), "3"},
		{"ints", 7, int64(6), "42"},
		{"fractional", 0.1, float64(3), "0.30000000000000004"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := executeMultiply(context.Background(), map[string]any{"a": tc.a, "b": tc.b})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Output != tc.want {
				t.Fatalf("unexpected output: %q, want %q", out.Output, tc.want)
			}
		})
	}
}

func TestExecuteMultiplyRejectsNonNumeric(t *testing.T) {
	t.Parallel()

	_, err := executeMultiply(context.Background(), map[string]any{"a": "three", "b": float64(4)})
	if !errors.Is(err, contractx.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}

	_, err = executeMultiply(context.Background(), map[string]any{"a": float64(3), "b": []any{}})
	if !errors.Is(err, contractx.ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
}

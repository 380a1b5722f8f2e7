// Package tool declares the callable tools exposed to the upstream
// assistant and executes them on its behalf.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"

	contractx "github.com/mediminds/voicerelay/relay/contract"
)

var ErrToolRedefined = errors.New("tool already registered")

// Handler executes one tool call. Argument validation beyond required
// fields is the handler's job; it reports tool-level failures either as
// a ToolResult.Error or as a wrapped ErrInvalidArguments.
type Handler func(ctx context.Context, args map[string]any) (contractx.ToolResult, error)

type definition struct {
	info       *schema.ToolInfo
	parameters *openapi3.Schema
	handler    Handler
}

// Registry resolves tool names to executors and renders the tool list
// advertised to the upstream service at session-configuration time.
// Definitions are immutable once registered.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*definition)}
}

func (r *Registry) Define(info *schema.ToolInfo, handler Handler) error {
	if info == nil || strings.TrimSpace(info.Name) == "" {
		return errors.New("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", info.Name)
	}

	var parameters *openapi3.Schema
	if info.ParamsOneOf != nil {
		converted, err := info.ParamsOneOf.ToOpenAPIV3()
		if err != nil {
			return fmt.Errorf("tool %s: convert parameter schema: %w", info.Name, err)
		}
		parameters = converted
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[info.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolRedefined, info.Name)
	}
	r.defs[info.Name] = &definition{info: info, parameters: parameters, handler: handler}
	r.order = append(r.order, info.Name)
	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (contractx.ToolResult, error) {
	r.mu.RLock()
	def, ok := r.defs[name]
	r.mu.RUnlock()
	if !ok {
		return contractx.ToolResult{Tool: name}, fmt.Errorf("%w: %s", contractx.ErrUnknownTool, name)
	}

	if def.parameters != nil {
		for _, required := range def.parameters.Required {
			if _, present := args[required]; !present {
				return contractx.ToolResult{Tool: name},
					fmt.Errorf("%w: %s: missing required parameter %q", contractx.ErrInvalidArguments, name, required)
			}
		}
	}

	return def.handler(ctx, args)
}

// Definitions renders the registered tools as upstream session-config
// payloads: {"type":"function","name":...,"description":...,"parameters":
// <json schema>}, in registration order.
func (r *Registry) Definitions() ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payloads := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		def := r.defs[name]
		parameters := map[string]any{"type": "object", "properties": map[string]any{}}
		if def.parameters != nil {
			encoded, err := json.Marshal(def.parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %s: encode parameter schema: %w", name, err)
			}
			if err := json.Unmarshal(encoded, &parameters); err != nil {
				return nil, fmt.Errorf("tool %s: decode parameter schema: %w", name, err)
			}
		}
		payloads = append(payloads, map[string]any{
			"type":        "function",
			"name":        def.info.Name,
			"description": def.info.Desc,
			"parameters":  parameters,
		})
	}
	return payloads, nil
}

// ParseArgs decodes a raw tool-call argument string. An empty string
// yields an empty map; anything undecodable is an ErrInvalidArguments.
func ParseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrInvalidArguments, err)
	}
	return args, nil
}

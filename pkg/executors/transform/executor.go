// Package transform provides a context-shaping executor: each configured
// mapping entry is rendered as a template and written into the execution
// context under its key.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/template"
)

const NodeType = "transform"

type Executor struct {
	mapping map[string]any
}

func NewExecutor(config map[string]any) (*Executor, error) {
	mapping, ok := config["mapping"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'mapping'")
	}

	return &Executor{mapping: mapping}, nil
}

func (e *Executor) Execute(_ context.Context, input protocol.ExecutionInput) (protocol.ExecutionResult, error) {
	next := input.Context.Clone()

	for key, raw := range e.mapping {
		expr, ok := raw.(string)
		if !ok {
			next[key] = raw

			continue
		}

		value, err := template.RenderWithContext(expr, input.Context)
		if err != nil {
			return protocol.ExecutionResult{}, fmt.Errorf("failed to render mapping %q: %w", key, err)
		}

		next[key] = value
	}

	return protocol.ExecutionResult{Context: next}, nil
}

type Factory struct{}

func NewFactory() protocol.NodeExecutorFactory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "Transform"
}

func (f *Factory) Description() string {
	return "Renders templated mappings into the execution context."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"mapping": map[string]any{
				"type":        "object",
				"description": "Context keys to templated expressions.",
			},
		},
		"required": []string{"mapping"},
	}
}

func (f *Factory) Create(_ context.Context, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(config)
}

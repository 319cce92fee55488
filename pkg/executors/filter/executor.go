// Package filter provides the conditional branching executor. It is the key
// control flow node enabling different execution paths: the condition result
// selects the "true" or "false" output port, reported out-of-band as the
// activated port rather than through the shared context.
package filter

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
	"github.com/loomhq/loom/pkg/template"
)

const NodeType = "filter"

// Executor evaluates a templated condition against the execution context.
type Executor struct {
	condition string
}

func NewExecutor(config map[string]any) (*Executor, error) {
	condition, ok := config["condition"].(string)
	if !ok {
		return nil, errors.New("missing required field 'condition'")
	}

	return &Executor{condition: condition}, nil
}

// Execute evaluates the condition and reports which branch fired. The
// context passes through unchanged; branch routing never leaks into it.
func (e *Executor) Execute(_ context.Context, input protocol.ExecutionInput) (protocol.ExecutionResult, error) {
	value, err := template.RenderWithContext(e.condition, input.Context)
	if err != nil {
		return protocol.ExecutionResult{}, fmt.Errorf("condition evaluation failed: %w", err)
	}

	port := models.OutputPortFalse
	if truthy(value) {
		port = models.OutputPortTrue
	}

	return protocol.ExecutionResult{
		Context:       input.Context,
		ActivatedPort: port,
	}, nil
}

// truthy coerces arbitrary rendered values to a branch decision.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "0"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	case nil:
		return false
	default:
		return false
	}
}

// Factory creates filter executors.
type Factory struct{}

func NewFactory() protocol.NodeExecutorFactory {
	return &Factory{}
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "Filter"
}

func (f *Factory) Description() string {
	return "Evaluates a condition and routes execution to the true or false path."
}

func (f *Factory) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Condition expression to evaluate against the execution context.",
			},
		},
		"required": []string{"condition"},
	}
}

func (f *Factory) Create(_ context.Context, config map[string]any) (protocol.NodeExecutor, error) {
	return NewExecutor(config)
}

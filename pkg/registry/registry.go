// Package registry maps node-type identifiers to executor factories. It is
// the single extension point for adding node behaviors; the orchestrator
// never branches on concrete node types.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loomhq/loom/pkg/protocol"
)

// ErrNodeTypeNotRegistered indicates a workflow references a node type with
// no registered executor. This is a configuration error surfaced to the
// user, never a crash.
var ErrNodeTypeNotRegistered = errors.New("node type not registered")

// ConfigError wraps node configuration failures (unknown type, schema
// violations, missing required data).
type ConfigError struct {
	NodeType string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for node type %q: %v", e.NodeType, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError checks whether err is a node configuration error.
func IsConfigError(err error) bool {
	var configErr *ConfigError

	return errors.As(err, &configErr) || errors.Is(err, ErrNodeTypeNotRegistered)
}

// Registry holds executor factories keyed by node type.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.NodeExecutorFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]protocol.NodeExecutorFactory),
	}
}

// Register adds an executor factory. Registering the same id twice replaces
// the earlier factory.
func (r *Registry) Register(factory protocol.NodeExecutorFactory) {
	r.factories[factory.ID()] = factory
}

// Types returns the registered node type identifiers.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

// ExecutorFor creates an executor for the given node type, validating the
// node configuration against the factory's JSON schema when one is declared.
func (r *Registry) ExecutorFor(ctx context.Context, nodeType string, config map[string]any) (protocol.NodeExecutor, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, &ConfigError{NodeType: nodeType, Err: ErrNodeTypeNotRegistered}
	}

	if schema := factory.ConfigSchema(); schema != nil {
		if err := validateConfig(schema, config); err != nil {
			return nil, &ConfigError{NodeType: nodeType, Err: err}
		}
	}

	executor, err := factory.Create(ctx, config)
	if err != nil {
		return nil, &ConfigError{NodeType: nodeType, Err: err}
	}

	return executor, nil
}

func validateConfig(schema, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return errors.New(strings.Join(details, "; "))
	}

	return nil
}

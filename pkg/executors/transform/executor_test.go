package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/protocol"
)

func TestExecuteRendersMappingsIntoContext(t *testing.T) {
	executor, err := NewExecutor(map[string]any{
		"mapping": map[string]any{
			"greeting": "hello {{ .vars.name }}",
			"doubled":  "{{ .vars.count }}{{ .vars.count }}",
		},
	})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), protocol.ExecutionInput{
		Context: models.ExecutionContext{"name": "loom", "count": 4},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello loom", result.Context["greeting"])
	assert.Equal(t, 44.0, result.Context["doubled"])
	assert.Equal(t, "loom", result.Context["name"], "prior context keys survive")
}

func TestExecuteDoesNotMutateInputContext(t *testing.T) {
	executor, err := NewExecutor(map[string]any{
		"mapping": map[string]any{"added": "value"},
	})
	require.NoError(t, err)

	input := models.ExecutionContext{"existing": "yes"}

	_, err = executor.Execute(context.Background(), protocol.ExecutionInput{Context: input})
	require.NoError(t, err)

	assert.NotContains(t, input, "added")
}

func TestExecuteNonStringMappingPassedThrough(t *testing.T) {
	executor, err := NewExecutor(map[string]any{
		"mapping": map[string]any{"limit": 10},
	})
	require.NoError(t, err)

	result, err := executor.Execute(context.Background(), protocol.ExecutionInput{
		Context: models.ExecutionContext{},
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Context["limit"])
}

func TestExecuteBadTemplateFails(t *testing.T) {
	executor, err := NewExecutor(map[string]any{
		"mapping": map[string]any{"bad": "{{ .broken"},
	})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), protocol.ExecutionInput{Context: models.ExecutionContext{}})
	require.Error(t, err)
}

func TestNewExecutorRequiresMapping(t *testing.T) {
	_, err := NewExecutor(map[string]any{})
	require.Error(t, err)
}

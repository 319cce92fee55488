package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
	"github.com/loomhq/loom/pkg/template"
)

func TestRenderPlainString(t *testing.T) {
	result, err := template.Render("hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
}

func TestRenderCoercesNumber(t *testing.T) {
	result, err := template.Render("{{ .count }}", map[string]any{"count": 42})
	require.NoError(t, err)
	assert.Equal(t, 42.0, result)
}

func TestRenderCoercesBool(t *testing.T) {
	result, err := template.Render("{{ .ok }}", map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRenderCoercesJSONObject(t *testing.T) {
	result, err := template.Render(`{"name": "{{ .name }}"}`, map[string]any{"name": "loom"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "loom"}, result)
}

func TestRenderLeavesMalformedJSONAsString(t *testing.T) {
	result, err := template.Render(`{not json`, nil)
	require.NoError(t, err)
	assert.Equal(t, "{not json", result)
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := template.Render("{{ .broken", nil)
	require.Error(t, err)
}

func TestRenderWithContextExposesVarsAndContext(t *testing.T) {
	execCtx := models.ExecutionContext{"city": "Lisbon"}

	fromVars, err := template.RenderWithContext("{{ .vars.city }}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", fromVars)

	fromContext, err := template.RenderWithContext("{{ .context.city }}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", fromContext)
}

package prompt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmesh/orchestrator/faults"
	"github.com/cortexmesh/orchestrator/prompt"
)

func TestTemplateRenderSubstitutesPlaceholders(t *testing.T) {
	tpl := prompt.Template{Key: "greet", Body: "Hello {{name}}, welcome to {{place}}."}
	out, err := tpl.Render(map[string]string{"name": "Ada", "place": "the lab"})
	require.NoError(t, err)
	require.Equal(t, "Hello Ada, welcome to the lab.", out)
}

func TestTemplateRenderFailsOnMissingPlaceholder(t *testing.T) {
	tpl := prompt.Template{Key: "greet", Body: "Hello {{name}}."}
	_, err := tpl.Render(map[string]string{})
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindBadInput, f.Kind())
}

func TestRegistryLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  classify: \"Classify: {{query}}\"\n"), 0o644))

	reg := prompt.NewRegistry()
	require.NoError(t, reg.Load(path))

	tpl, err := reg.Get("classify")
	require.NoError(t, err)
	rendered, err := tpl.Render(map[string]string{"query": "hi"})
	require.NoError(t, err)
	require.Equal(t, "Classify: hi", rendered)
}

func TestRegistryGetUnknownTemplate(t *testing.T) {
	reg := prompt.NewRegistry()
	_, err := reg.Get("missing")
	require.Error(t, err)
	f, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.KindNotFound, f.Kind())
}

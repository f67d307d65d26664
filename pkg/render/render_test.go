package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/agentkit/pkg/artifact"
)

type testData struct {
	Name         string
	Description  string
	Tools        []string
	License      string
	Version      string
	ArgumentHint string
	Model        string
	Color        string
	Body         string
}

func TestRenderSkill(t *testing.T) {
	r := New()
	out, err := r.Render(t.Context(), artifact.KindSkill, testData{
		Name:        "pdf-tools",
		Description: "Extract text: tables and forms",
		Tools:       []string{"Read", "Bash(pdftotext:*)"},
		Version:     "1.0.0",
	})
	require.NoError(t, err)

	doc, err := artifact.ParseDocument([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "pdf-tools", doc.String("name"))
	assert.Equal(t, "Extract text: tables and forms", doc.String("description"))
	assert.Equal(t, []string{"Read", "Bash(pdftotext:*)"}, doc.Strings("allowed-tools"))
	assert.Equal(t, "1.0.0", doc.String("version"))
	assert.Contains(t, doc.Body, "# Pdf Tools")
	assert.Contains(t, doc.Body, "## Instructions")
}

func TestRenderCommandWithBody(t *testing.T) {
	r := New()
	out, err := r.Render(t.Context(), artifact.KindCommand, testData{
		Name:         "review",
		Description:  "Review a pull request",
		ArgumentHint: "[pr-number]",
		Model:        "haiku",
		Body:         "Review PR #$1 and summarise.",
	})
	require.NoError(t, err)

	doc, err := artifact.ParseDocument([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "[pr-number]", doc.String("argument-hint"))
	assert.Equal(t, "haiku", doc.String("model"))
	assert.Empty(t, doc.String("allowed-tools"))
	assert.Equal(t, "Review PR #$1 and summarise.\n", doc.Body)
}

func TestRenderAgent(t *testing.T) {
	r := New()
	out, err := r.Render(t.Context(), artifact.KindAgent, testData{
		Name:        "planner",
		Description: "Plans work.\nUse proactively.",
		Tools:       []string{"Read", "Grep"},
		Color:       "cyan",
	})
	require.NoError(t, err)

	doc, err := artifact.ParseDocument([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "Plans work.\nUse proactively.", doc.String("description"))
	assert.Equal(t, "cyan", doc.String("color"))
	assert.Equal(t, []string{"Read", "Grep"}, doc.Strings("tools"))
	assert.True(t, strings.HasPrefix(doc.Body, "You are planner."))
}

func TestRenderInjectionStaysData(t *testing.T) {
	r := New()
	out, err := r.Render(t.Context(), artifact.KindAgent, testData{
		Name:        "safe",
		Description: `{{ env "HOME" }}`,
		Body:        `{{ .Secret }}`,
	})
	require.NoError(t, err)
	assert.Contains(t, out, `{{ .Secret }}`)

	doc, err := artifact.ParseDocument([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, `{{ env "HOME" }}`, doc.String("description"))
}

func TestSandboxDeniesEnvironment(t *testing.T) {
	r := New()
	_, err := r.RenderString(t.Context(), "env", `{{ env "HOME" }}`, nil)
	require.Error(t, err)

	_, err = r.RenderString(t.Context(), "missing", `{{ .missing }}`, map[string]any{})
	require.Error(t, err)

	out, err := r.RenderString(t.Context(), "ok", `{{ upper "abc" }}-{{ yaml .v }}`, map[string]any{"v": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "ABC-[a, b]", out)
}

func TestOutputLimit(t *testing.T) {
	r := New(WithMaxOutput(16))
	_, err := r.RenderString(t.Context(), "big", `{{ repeat 100 "x" }}`, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutputTooLarge))
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent.md.tmpl"), []byte("---\nname: {{ .Name }}\n---\ncustom\n"), 0o644))

	r := New(WithOverrideDir(dir))
	out, err := r.Render(t.Context(), artifact.KindAgent, testData{Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "---\nname: x\n---\ncustom\n", out)

	// other kinds fall back to builtin templates
	text, err := r.Template(artifact.KindCommand)
	require.NoError(t, err)
	assert.Contains(t, text, "$ARGUMENTS")
}

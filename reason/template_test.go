package reason

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() promptVars {
	return promptVars{
		SourceCommand: "ask",
		ScenarioName:  "charge-intake",
		ScenarioAPI:   "POST /v1/charges",
		ScenarioDesc:  "Charge creation flow",
		Question:      "did retries change?",
		Graph:         "api: POST /v1/charges\nservices: payments",
		Evidence:      `[{"id":"slack-1"}]`,
	}
}

func TestTemplateRendersFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Q: {{USER_QUESTION}}\nAPI: {{SCENARIO_API}}\nE: {{EVIDENCE_JSON}}"), 0o644))

	tmpl := NewTemplate(path, nil)
	defer tmpl.Close()

	out, fromFile := tmpl.Render(testVars())
	assert.True(t, fromFile)
	assert.Equal(t, "Q: did retries change?\nAPI: POST /v1/charges\nE: [{\"id\":\"slack-1\"}]", out)
}

func TestTemplateMissingFileFallsBack(t *testing.T) {
	tmpl := NewTemplate(filepath.Join(t.TempDir(), "absent.txt"), nil)
	defer tmpl.Close()

	out, fromFile := tmpl.Render(testVars())
	assert.False(t, fromFile)
	assert.Contains(t, out, "did retries change?")
	assert.Contains(t, out, "POST /v1/charges")
	assert.Contains(t, out, "single JSON object")
}

func TestTemplateEmptyPathUsesBuiltin(t *testing.T) {
	tmpl := NewTemplate("", nil)
	defer tmpl.Close()

	out, fromFile := tmpl.Render(testVars())
	assert.False(t, fromFile)
	assert.Contains(t, out, "Scenario: charge-intake")
}

func TestTemplateHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1 {{USER_QUESTION}}"), 0o644))

	tmpl := NewTemplate(path, nil)
	defer tmpl.Close()

	out, _ := tmpl.Render(testVars())
	assert.Contains(t, out, "v1 ")

	require.NoError(t, os.WriteFile(path, []byte("v2 {{USER_QUESTION}}"), 0o644))

	require.Eventually(t, func() bool {
		out, _ := tmpl.Render(testVars())
		return out == "v2 did retries change?"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGraphLines(t *testing.T) {
	got := graphLines("POST /v1/charges", []string{"payments"}, nil, []string{"charges-api"}, nil)
	assert.Equal(t, "api: POST /v1/charges\nservices: payments\ndocs: charges-api", got)

	assert.Equal(t, "", graphLines("", nil, nil, nil, nil))
}

package reason

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Prompt tokens replaced by literal substitution. Not text/template:
// prompt files are edited by hand and stray braces must not break them.
const (
	tokenSourceCommand = "{{SOURCE_COMMAND}}"
	tokenScenarioName  = "{{SCENARIO_NAME}}"
	tokenScenarioAPI   = "{{SCENARIO_API}}"
	tokenScenarioDesc  = "{{SCENARIO_DESCRIPTION}}"
	tokenUserQuestion  = "{{USER_QUESTION}}"
	tokenGraph         = "{{GRAPH_NEIGHBORHOOD}}"
	tokenEvidence      = "{{EVIDENCE_JSON}}"
)

// promptVars carries the values substituted into a template.
type promptVars struct {
	SourceCommand string
	ScenarioName  string
	ScenarioAPI   string
	ScenarioDesc  string
	Question      string
	Graph         string
	Evidence      string
}

// Template renders the reasoning prompt from an external file when one
// is configured and readable, falling back to a built-in builder
// otherwise. The file is re-read when fsnotify reports a change, so
// prompt edits apply without a restart.
type Template struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	content string

	watcher *fsnotify.Watcher
}

// NewTemplate loads the template at path and begins watching it. An
// empty path, or a path that cannot be read, yields a template that
// renders via the built-in builder.
func NewTemplate(path string, logger *slog.Logger) *Template {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Template{path: path, logger: logger}
	if path == "" {
		return t
	}

	t.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("template watcher unavailable", "path", path, "error", err)
		return t
	}
	// Watch the directory, not the file: editors replace files on save
	// and a file watch dies with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("template watch failed", "path", path, "error", err)
		watcher.Close()
		return t
	}
	t.watcher = watcher
	go t.watch()
	return t
}

// Close stops the file watcher.
func (t *Template) Close() error {
	if t.watcher == nil {
		return nil
	}
	return t.watcher.Close()
}

func (t *Template) watch() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Name != t.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				t.reload()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("template watcher error", "error", err)
		}
	}
}

func (t *Template) reload() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		t.logger.Warn("prompt template unreadable, using built-in", "path", t.path, "error", err)
		t.mu.Lock()
		t.content = ""
		t.mu.Unlock()
		return
	}
	t.mu.Lock()
	t.content = string(data)
	t.mu.Unlock()
	t.logger.Debug("prompt template loaded", "path", t.path, "bytes", len(data))
}

// Render produces the prompt text and reports whether the external
// template was used.
func (t *Template) Render(vars promptVars) (string, bool) {
	t.mu.RLock()
	content := t.content
	t.mu.RUnlock()

	if content == "" {
		return builtinPrompt(vars), false
	}

	replacer := strings.NewReplacer(
		tokenSourceCommand, vars.SourceCommand,
		tokenScenarioName, vars.ScenarioName,
		tokenScenarioAPI, vars.ScenarioAPI,
		tokenScenarioDesc, vars.ScenarioDesc,
		tokenUserQuestion, vars.Question,
		tokenGraph, vars.Graph,
		tokenEvidence, vars.Evidence,
	)
	return replacer.Replace(content), true
}

// builtinPrompt is the fallback prompt builder. It must stay in sync
// with the response schema reconcile.go tolerates.
func builtinPrompt(vars promptVars) string {
	var b strings.Builder
	b.WriteString("You are a documentation-drift analyst. Using only the evidence and graph context below, determine whether the documentation for the API in question has drifted from its actual behavior.\n\n")
	fmt.Fprintf(&b, "Source: %s\n", vars.SourceCommand)
	fmt.Fprintf(&b, "Scenario: %s (API: %s)\n", vars.ScenarioName, vars.ScenarioAPI)
	if vars.ScenarioDesc != "" {
		fmt.Fprintf(&b, "Scenario description: %s\n", vars.ScenarioDesc)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n", vars.Question)
	b.WriteString("\nGraph neighborhood:\n")
	if vars.Graph == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(vars.Graph)
		b.WriteString("\n")
	}
	b.WriteString("\nEvidence (cite entries by id):\n")
	b.WriteString(vars.Evidence)
	b.WriteString("\n\nRespond with a single JSON object. Fields: summary (string), sections (array of {title, body}), impacted ({apis, services, components, docs} string arrays), doc_drift (array of {doc, issue, apis, evidence_ids}), next_steps (string array). Only name entities that appear in the evidence or graph context.\n")
	return b.String()
}

// graphLines renders a summary as human-readable prompt lines.
func graphLines(api string, services, components, docs, events []string) string {
	var lines []string
	if api != "" {
		lines = append(lines, "api: "+api)
	}
	if len(services) > 0 {
		lines = append(lines, "services: "+strings.Join(services, ", "))
	}
	if len(components) > 0 {
		lines = append(lines, "components: "+strings.Join(components, ", "))
	}
	if len(docs) > 0 {
		lines = append(lines, "docs: "+strings.Join(docs, ", "))
	}
	if len(events) > 0 {
		lines = append(lines, "recent events: "+strings.Join(events, ", "))
	}
	return strings.Join(lines, "\n")
}

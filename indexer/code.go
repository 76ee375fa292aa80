package indexer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360studio/driftwatch/vectorstore"
)

// CodeChange is one exported code-change record: a commit or a pull
// request, distinguished by PRNumber.
type CodeChange struct {
	SHA          string    `json:"sha"`
	PRNumber     int       `json:"pr_number"`
	Repo         string    `json:"repo"` // e.g. "acme/payments"
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	FilesChanged []string  `json:"files_changed"`
	ServiceIDs   []string  `json:"service_ids"`
	ComponentIDs []string  `json:"component_ids"`
	APIs         []string  `json:"apis"`
	Labels       []string  `json:"labels"`
}

// MapCodeChange converts a raw code-change record into a vector event.
func MapCodeChange(raw json.RawMessage) (*vectorstore.Event, error) {
	var change CodeChange
	if err := json.Unmarshal(raw, &change); err != nil {
		return nil, fmt.Errorf("parse code record: %w", err)
	}
	if change.Title == "" && change.Body == "" {
		return nil, fmt.Errorf("code record has no content")
	}

	sourceType := vectorstore.SourceCodeCommit
	var eventID string
	switch {
	case change.PRNumber > 0:
		sourceType = vectorstore.SourceCodePR
		eventID = fmt.Sprintf("pr-%s-%d", strings.ReplaceAll(change.Repo, "/", "-"), change.PRNumber)
	case change.SHA != "":
		eventID = "commit-" + change.SHA
	default:
		eventID = fallbackEventID("code", change.Repo, change.Timestamp.UTC().Format(time.RFC3339Nano), change.Title)
	}

	metadata := map[string]any{
		"repo":   change.Repo,
		"author": change.Author,
	}
	if len(change.FilesChanged) > 0 {
		metadata["files_changed"] = change.FilesChanged
	}
	if link := codePermalink(change); link != "" {
		metadata["permalink"] = link
	}

	content := change.Title
	if change.Body != "" {
		content += "\n\n" + change.Body
	}

	label := "commit " + change.SHA
	if sourceType == vectorstore.SourceCodePR {
		label = fmt.Sprintf("PR #%d", change.PRNumber)
	}

	return &vectorstore.Event{
		EventID:      eventID,
		SourceType:   sourceType,
		Text:         composeText(label+" in "+change.Repo, change.Author, change.Timestamp, change.APIs, content),
		Timestamp:    change.Timestamp,
		ServiceIDs:   change.ServiceIDs,
		ComponentIDs: change.ComponentIDs,
		APIs:         change.APIs,
		Labels:       change.Labels,
		Metadata:     metadata,
	}, nil
}

// codePermalink builds a GitHub-style link when the record names a repo.
func codePermalink(change CodeChange) string {
	if change.Repo == "" {
		return ""
	}
	if change.PRNumber > 0 {
		return fmt.Sprintf("https://github.com/%s/pull/%d", change.Repo, change.PRNumber)
	}
	if change.SHA != "" {
		return fmt.Sprintf("https://github.com/%s/commit/%s", change.Repo, change.SHA)
	}
	return ""
}

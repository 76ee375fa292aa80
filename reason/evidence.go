package reason

import (
	"fmt"
	"strings"

	"github.com/c360studio/driftwatch/retrieval"
)

// maxEvidenceText bounds how much of a snippet's text is carried into
// the prompt and the answer.
const maxEvidenceText = 600

// Evidence is one flattened, citable snippet. The ID is stable within a
// single answer so the model and the UI can reference the same entry.
type Evidence struct {
	ID         string   `json:"id"`
	Source     string   `json:"source"`
	Score      float64  `json:"score"`
	Text       string   `json:"text"`
	Services   []string `json:"services,omitempty"`
	Components []string `json:"components,omitempty"`
	APIs       []string `json:"apis,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	Permalink  string   `json:"permalink,omitempty"`
}

// flattenEvidence collapses a retrieval bundle into one ordered list.
// Backend ids are preferred; an entry without one gets "<source>-<index>".
func flattenEvidence(bundle *retrieval.Bundle) []Evidence {
	if bundle == nil {
		return nil
	}
	var out []Evidence
	out = appendEvidence(out, "chat", bundle.Chat)
	out = appendEvidence(out, "code", bundle.Code)
	out = appendEvidence(out, "docs", bundle.Docs)
	return out
}

func appendEvidence(out []Evidence, source string, snippets []retrieval.Snippet) []Evidence {
	for i, s := range snippets {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", source, i)
		}
		e := Evidence{
			ID:         id,
			Source:     source,
			Score:      s.Score,
			Text:       collapseText(s.Text, maxEvidenceText),
			Services:   s.Services,
			Components: s.Components,
			APIs:       s.APIs,
			Labels:     s.Labels,
		}
		if link, ok := s.Metadata["permalink"].(string); ok {
			e.Permalink = link
		}
		out = append(out, e)
	}
	return out
}

// collapseText squeezes runs of whitespace to single spaces and
// truncates to limit runes with an ellipsis.
func collapseText(text string, limit int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

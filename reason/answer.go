// Package reason hosts the doc-drift reasoner: it classifies a question
// into a curated scenario, gathers vector evidence and a graph
// neighborhood, issues one schema-constrained completion call, and
// reconciles the model's semi-structured output into a stable answer.
package reason

import "sort"

// Section is one titled block of the answer body.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// DriftFact records one suspected documentation mismatch.
type DriftFact struct {
	Doc         string   `json:"doc"`
	Issue       string   `json:"issue"`
	APIs        []string `json:"apis,omitempty"`
	Services    []string `json:"services,omitempty"`
	Components  []string `json:"components,omitempty"`
	EvidenceIDs []string `json:"evidence_ids,omitempty"`
}

// Impacted groups the entities an answer implicates, deduplicated and
// sorted per kind.
type Impacted map[string][]string

// impactedKinds is the fixed key set of an Impacted map.
var impactedKinds = []string{"apis", "services", "components", "docs"}

// add records an id under kind; duplicates collapse at normalize time.
func (m Impacted) add(kind, id string) {
	if id == "" {
		return
	}
	m[kind] = append(m[kind], id)
}

// normalize dedupes and sorts every kind, dropping empty kinds.
func (m Impacted) normalize() {
	for _, kind := range impactedKinds {
		ids := m[kind]
		if len(ids) == 0 {
			delete(m, kind)
			continue
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if id != "" {
				set[id] = struct{}{}
			}
		}
		out := make([]string, 0, len(set))
		for id := range set {
			out = append(out, id)
		}
		sort.Strings(out)
		m[kind] = out
	}
}

// Answer is the reasoner's output. A failed model call or unparsable
// response still produces an Answer; the failure lands in Error.
type Answer struct {
	Question  string         `json:"question"`
	Scenario  string         `json:"scenario"`
	Summary   string         `json:"summary"`
	Sections  []Section      `json:"sections,omitempty"`
	Impacted  Impacted       `json:"impacted,omitempty"`
	Evidence  []Evidence     `json:"evidence"`
	DocDrift  []DriftFact    `json:"doc_drift,omitempty"`
	NextSteps []string       `json:"next_steps,omitempty"`
	Raw       string         `json:"raw_response,omitempty"`
	Error     *string        `json:"error"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// setError records msg as the answer's error string.
func (a *Answer) setError(msg string) {
	a.Error = &msg
}

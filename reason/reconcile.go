package reason

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// modelPayload is the tolerated response shape. Sections and impacted
// arrive in two historical forms each, so both stay raw until
// reconciliation.
type modelPayload struct {
	Summary          string           `json:"summary"`
	Sections         json.RawMessage  `json:"sections"`
	Impacted         json.RawMessage  `json:"impacted"`
	ImpactedEntities []impactedEntity `json:"impacted_entities"`
	DocDrift         []DriftFact      `json:"doc_drift"`
	NextSteps        []string         `json:"next_steps"`
	Warnings         []string         `json:"warnings"`
	Debug            map[string]any   `json:"debug"`
}

type impactedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// flatImpacted is the legacy impacted form.
type flatImpacted struct {
	APIs       []string `json:"apis"`
	Services   []string `json:"services"`
	Components []string `json:"components"`
	Docs       []string `json:"docs"`
}

// entityKinds maps typed-entity type names onto the canonical impacted
// kinds. Singular and plural spellings both occur in the wild.
var entityKinds = map[string]string{
	"api":        "apis",
	"apis":       "apis",
	"endpoint":   "apis",
	"service":    "services",
	"services":   "services",
	"component":  "components",
	"components": "components",
	"doc":        "docs",
	"docs":       "docs",
	"document":   "docs",
}

// reconcileSections accepts either the typed list form or the legacy
// title→body map. Map entries come out sorted by title for stability.
func reconcileSections(raw json.RawMessage) ([]Section, []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var typed []Section
	if err := json.Unmarshal(raw, &typed); err == nil {
		out := typed[:0]
		for _, s := range typed {
			if s.Title != "" || s.Body != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}

	var legacy map[string]string
	if err := json.Unmarshal(raw, &legacy); err == nil {
		titles := make([]string, 0, len(legacy))
		for title := range legacy {
			titles = append(titles, title)
		}
		sort.Strings(titles)
		sections := make([]Section, 0, len(titles))
		for _, title := range titles {
			sections = append(sections, Section{Title: title, Body: legacy[title]})
		}
		return sections, []string{"sections: legacy map form"}
	}

	return nil, []string{"sections: unrecognized shape, dropped"}
}

// reconcileImpacted merges the flat impacted form and the typed
// impacted_entities list into one deduplicated, sorted map. When both
// are present, the union wins.
func reconcileImpacted(raw json.RawMessage, entities []impactedEntity) (Impacted, []string) {
	impacted := Impacted{}
	var warnings []string

	if len(raw) > 0 && string(raw) != "null" {
		var flat flatImpacted
		if err := json.Unmarshal(raw, &flat); err != nil {
			warnings = append(warnings, "impacted: unrecognized shape, dropped")
		} else {
			for _, id := range flat.APIs {
				impacted.add("apis", id)
			}
			for _, id := range flat.Services {
				impacted.add("services", id)
			}
			for _, id := range flat.Components {
				impacted.add("components", id)
			}
			for _, id := range flat.Docs {
				impacted.add("docs", id)
			}
		}
	}

	for _, e := range entities {
		kind, ok := entityKinds[strings.ToLower(strings.TrimSpace(e.Type))]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("impacted_entities: unknown type %q", e.Type))
			continue
		}
		impacted.add(kind, e.ID)
	}

	impacted.normalize()
	if len(impacted) == 0 {
		return nil, warnings
	}
	return impacted, warnings
}

// reconcileDocDrift keeps explicit model facts when present; otherwise
// it synthesizes one placeholder per impacted doc so downstream
// consumers always have a drift row when docs are implicated.
func reconcileDocDrift(facts []DriftFact, impacted Impacted) []DriftFact {
	kept := make([]DriftFact, 0, len(facts))
	for _, f := range facts {
		if f.Doc != "" {
			kept = append(kept, f)
		}
	}
	if len(kept) > 0 {
		return kept
	}

	docs := impacted["docs"]
	if len(docs) == 0 {
		return nil
	}
	apis := impacted["apis"]
	issue := "possible drift"
	if len(apis) > 0 {
		issue = fmt.Sprintf("possible drift against %s", strings.Join(apis, ", "))
	}
	synthesized := make([]DriftFact, 0, len(docs))
	for _, doc := range docs {
		synthesized = append(synthesized, DriftFact{
			Doc:   doc,
			Issue: issue,
			APIs:  apis,
		})
	}
	return synthesized
}

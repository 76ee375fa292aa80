// Package registry governs the closed set of canonical identifiers
// (services, components, APIs, docs) that all ingested and reasoned-over
// data must reference. The manifest is the single source of truth and is
// loaded once at process start.
package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry holds the four canonical identifier sets.
type Registry struct {
	services   map[string]struct{}
	components map[string]struct{}
	apis       map[string]struct{}
	docs       map[string]struct{}
}

// manifest is the on-disk shape of the canonical-id manifest.
type manifest struct {
	Services   []string   `yaml:"services"`
	Components []string   `yaml:"components"`
	APIs       []string   `yaml:"apis"`
	Docs       []string   `yaml:"docs"`
	Scenarios  []Scenario `yaml:"scenarios"`
}

// Load parses the canonical-id manifest into a Registry.
// A load failure here is fatal to the caller: nothing downstream can be
// trusted without the canonical sets.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return &Registry{
		services:   toSet(m.Services),
		components: toSet(m.Components),
		apis:       toSet(m.APIs),
		docs:       toSet(m.Docs),
	}, nil
}

// LoadScenarios parses the curated scenario list from the same manifest
// file. Scenario order in the file is classification order.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	return m.Scenarios, nil
}

// Refs is a set of identifier references to validate together.
// Nil slices mean "nothing to check" for that field.
type Refs struct {
	Services   []string
	Components []string
	APIs       []string
	Docs       []string
}

// AssertValid checks every referenced id against its canonical set.
// It returns a *ValidationError listing exactly which ids are unknown and
// under what context, or nil when all ids (including none) are known.
func (r *Registry) AssertValid(refs Refs, context string) error {
	verr := &ValidationError{Context: context}

	verr.add("services", unknown(refs.Services, r.services))
	verr.add("components", unknown(refs.Components, r.components))
	verr.add("apis", unknown(refs.APIs, r.apis))
	verr.add("docs", unknown(refs.Docs, r.docs))

	if verr.empty() {
		return nil
	}
	return verr
}

// HasAPI reports whether the id is a canonical API identifier.
func (r *Registry) HasAPI(id string) bool {
	_, ok := r.apis[id]
	return ok
}

// HasDoc reports whether the id is a canonical doc identifier.
func (r *Registry) HasDoc(id string) bool {
	_, ok := r.docs[id]
	return ok
}

// Snapshot is a serializable copy of the canonical sets for audit logging.
type Snapshot struct {
	Services   []string `json:"services"`
	Components []string `json:"components"`
	APIs       []string `json:"apis"`
	Docs       []string `json:"docs"`
}

// Snapshot returns sorted copies of the current sets.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Services:   sorted(r.services),
		Components: sorted(r.components),
		APIs:       sorted(r.apis),
		Docs:       sorted(r.docs),
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func unknown(ids []string, set map[string]struct{}) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

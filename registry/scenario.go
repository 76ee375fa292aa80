package registry

// Scenario is a curated incident storyline used as a bounded intent
// classifier: a primary API, its associated entities, and the keyword
// list that routes questions to it. This is deliberate keyword lookup
// over a small curated set, not a learned model.
type Scenario struct {
	Name        string   `yaml:"name" json:"name"`
	API         string   `yaml:"api" json:"api"`
	Services    []string `yaml:"services" json:"services"`
	Components  []string `yaml:"components" json:"components"`
	Docs        []string `yaml:"docs" json:"docs"`
	Description string   `yaml:"description" json:"description"`
	Keywords    []string `yaml:"keywords" json:"keywords"`
}

// Refs returns the scenario's entity references for canonical validation.
func (s Scenario) Refs() Refs {
	refs := Refs{
		Services:   s.Services,
		Components: s.Components,
		Docs:       s.Docs,
	}
	if s.API != "" {
		refs.APIs = []string{s.API}
	}
	return refs
}

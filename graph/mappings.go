package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mappings holds the static lookup tables the fallback path uses when the
// live graph backend is unreachable.
type Mappings struct {
	// APIComponents maps an API id to the components that serve it.
	APIComponents map[string][]string `yaml:"api_components"`

	// DocAPIs maps a doc id to the APIs it documents.
	DocAPIs map[string][]string `yaml:"doc_apis"`

	// DocComponents maps a doc id to the components it documents.
	DocComponents map[string][]string `yaml:"doc_components"`

	// ComponentService maps a component id to its owning service.
	ComponentService map[string]string `yaml:"component_service"`
}

// LoadMappings parses the static mapping tables from a YAML file.
func LoadMappings(path string) (*Mappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mappings %s: %w", path, err)
	}

	var m Mappings
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mappings %s: %w", path, err)
	}
	return &m, nil
}

// componentsFor returns the components serving an API.
func (m *Mappings) componentsFor(api string) []string {
	if m == nil {
		return nil
	}
	return m.APIComponents[api]
}

// servicesFor derives services from components via the ownership table.
func (m *Mappings) servicesFor(components []string) []string {
	if m == nil {
		return nil
	}
	var services []string
	for _, c := range components {
		if svc, ok := m.ComponentService[c]; ok {
			services = append(services, svc)
		}
	}
	return services
}

// docsFor returns docs connected to the API directly or through one of
// its components.
func (m *Mappings) docsFor(api string, components []string) []string {
	if m == nil {
		return nil
	}

	componentSet := make(map[string]struct{}, len(components))
	for _, c := range components {
		componentSet[c] = struct{}{}
	}

	var docs []string
	for doc, apis := range m.DocAPIs {
		for _, a := range apis {
			if a == api {
				docs = append(docs, doc)
				break
			}
		}
	}
	for doc, docComponents := range m.DocComponents {
		for _, c := range docComponents {
			if _, ok := componentSet[c]; ok {
				docs = append(docs, doc)
				break
			}
		}
	}
	return docs
}

package reason

import (
	"strings"

	"github.com/c360studio/driftwatch/registry"
)

// Classifier routes a question to one curated scenario by keyword
// containment. Order matters: the first scenario with a matching
// keyword wins, so more specific scenarios should come first.
type Classifier struct {
	scenarios []registry.Scenario
	fallback  registry.Scenario
}

// NewClassifier builds a classifier over an ordered scenario list.
// The fallback scenario is returned when no keyword matches.
func NewClassifier(scenarios []registry.Scenario, fallback registry.Scenario) *Classifier {
	return &Classifier{scenarios: scenarios, fallback: fallback}
}

// Classify matches the question against each scenario's keywords,
// case-insensitively, in declaration order. Pure: same question, same
// scenario, every time.
func (c *Classifier) Classify(question string) registry.Scenario {
	lowered := strings.ToLower(question)
	for _, scenario := range c.scenarios {
		for _, keyword := range scenario.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return scenario
			}
		}
	}
	return c.fallback
}

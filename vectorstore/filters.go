package vectorstore

// Filters restricts a search by canonical-id tags. Within a field a
// record passes if its set intersects the allowed values (any-match);
// across fields all non-empty filters must pass. An empty field is a
// no-op.
type Filters struct {
	Services   []string `json:"services,omitempty"`
	Components []string `json:"components,omitempty"`
	APIs       []string `json:"apis,omitempty"`
	Labels     []string `json:"labels,omitempty"`
}

// Empty reports whether no field is constrained.
func (f Filters) Empty() bool {
	return len(f.Services) == 0 && len(f.Components) == 0 && len(f.APIs) == 0 && len(f.Labels) == 0
}

// Match reports whether the event passes every non-empty field filter.
func (f Filters) Match(e *Event) bool {
	return intersects(e.ServiceIDs, f.Services) &&
		intersects(e.ComponentIDs, f.Components) &&
		intersects(e.APIs, f.APIs) &&
		intersects(e.Labels, f.Labels)
}

// intersects reports whether have shares a value with allowed.
// An empty allowed set passes everything.
func intersects(have, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		for _, h := range have {
			if a == h {
				return true
			}
		}
	}
	return false
}

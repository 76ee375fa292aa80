// Package graph answers one bounded question: which services, components,
// docs, and recent events are connected to a given API. A live NATS KV
// neighborhood bucket serves the answer when reachable; otherwise static
// mapping tables plus an exact scan of local index files stand in. Both
// paths return the identical Summary shape.
package graph

import "sort"

// Summary is a point-in-time neighborhood snapshot for one API.
type Summary struct {
	API          string   `json:"api"`
	Services     []string `json:"services"`
	Components   []string `json:"components"`
	Docs         []string `json:"docs"`
	RecentEvents []string `json:"recent_events"`
}

// Empty reports whether the summary carries no neighborhood at all.
func (s *Summary) Empty() bool {
	if s == nil {
		return true
	}
	return len(s.Services) == 0 && len(s.Components) == 0 && len(s.Docs) == 0 && len(s.RecentEvents) == 0
}

// normalize deduplicates and sorts every list in place.
func (s *Summary) normalize() {
	s.Services = dedupeSorted(s.Services)
	s.Components = dedupeSorted(s.Components)
	s.Docs = dedupeSorted(s.Docs)
	s.RecentEvents = dedupeSorted(s.RecentEvents)
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	for _, v := range in {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

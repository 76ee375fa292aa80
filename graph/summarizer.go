package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/vectorstore"
)

// DefaultMaxEvents bounds the recent-event lists when the caller does not.
const DefaultMaxEvents = 5

// Config configures the summarizer's live backend.
type Config struct {
	// URL is the NATS server URL. Empty disables the live path entirely.
	URL string `yaml:"url"`

	// Bucket is the KV bucket holding entity neighborhoods keyed by API.
	Bucket string `yaml:"bucket"`

	// Timeout bounds the connect and the lookup.
	Timeout time.Duration `yaml:"timeout"`
}

// EventSource exposes local index records for the fallback scan.
// *vectorstore.FileStore satisfies it.
type EventSource interface {
	Events() []vectorstore.Event
}

// Summarizer returns the graph neighborhood of one API.
type Summarizer struct {
	config   Config
	mappings *Mappings
	sources  []EventSource
	logger   *slog.Logger

	// Lazily-established connection to the live backend.
	mu sync.Mutex
	kv jetstream.KeyValue
}

// NewSummarizer creates a summarizer. mappings and sources feed the
// fallback path; either may be nil/empty when only the live path matters.
func NewSummarizer(config Config, mappings *Mappings, sources []EventSource, logger *slog.Logger) *Summarizer {
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{
		config:   config,
		mappings: mappings,
		sources:  sources,
		logger:   logger,
	}
}

// Summarize returns the neighborhood of the scenario's primary API:
// connected services, components, docs, and up to maxEvents recent event
// ids per source, deduplicated and sorted. A reachable live backend
// answers authoritatively; any failure falls back to the static tables
// and a local exact-tag scan.
func (s *Summarizer) Summarize(ctx context.Context, scenario registry.Scenario, maxEvents int) *Summary {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	if s.config.URL != "" {
		summary, err := s.liveSummary(ctx, scenario.API, maxEvents)
		if err == nil {
			return summary
		}
		s.logger.Warn("Live graph lookup failed, using static fallback",
			"api", scenario.API, "error", err)
	}

	return s.fallbackSummary(scenario, maxEvents)
}

// neighborhood is the stored KV value shape.
type neighborhood struct {
	Services     []string `json:"services"`
	Components   []string `json:"components"`
	Docs         []string `json:"docs"`
	RecentEvents []string `json:"recent_events"`
}

// liveSummary performs one bounded KV lookup against the graph bucket.
func (s *Summarizer) liveSummary(ctx context.Context, api string, maxEvents int) (*Summary, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	kv, err := s.bucket(lookupCtx)
	if err != nil {
		return nil, err
	}

	entry, err := kv.Get(lookupCtx, kvKey(api))
	if err != nil {
		return nil, fmt.Errorf("graph lookup for %s: %w", api, err)
	}

	var n neighborhood
	if err := json.Unmarshal(entry.Value(), &n); err != nil {
		return nil, fmt.Errorf("decode neighborhood for %s: %w", api, err)
	}

	if len(n.RecentEvents) > maxEvents {
		n.RecentEvents = n.RecentEvents[:maxEvents]
	}

	summary := &Summary{
		API:          api,
		Services:     n.Services,
		Components:   n.Components,
		Docs:         n.Docs,
		RecentEvents: n.RecentEvents,
	}
	summary.normalize()
	return summary, nil
}

// bucket returns the KV handle, connecting on first use.
func (s *Summarizer) bucket(ctx context.Context) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv != nil {
		return s.kv, nil
	}

	nc, err := nats.Connect(s.config.URL, nats.Timeout(s.config.Timeout))
	if err != nil {
		return nil, fmt.Errorf("connect graph backend: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, s.config.Bucket)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open bucket %s: %w", s.config.Bucket, err)
	}

	s.kv = kv
	return kv, nil
}

// kvKeyPattern strips characters NATS KV keys cannot carry.
var kvKeyPattern = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

// kvKey maps an API id like "POST /v1/charges" onto a valid KV key.
func kvKey(api string) string {
	return kvKeyPattern.ReplaceAllString(api, "_")
}

// fallbackSummary rebuilds the neighborhood from the static tables and an
// exact scan of the local index files. This is a tag-equality scan, not a
// semantic search.
func (s *Summarizer) fallbackSummary(scenario registry.Scenario, maxEvents int) *Summary {
	api := scenario.API

	components := s.mappings.componentsFor(api)
	summary := &Summary{
		API:        api,
		Components: components,
		Services:   s.mappings.servicesFor(components),
		Docs:       s.mappings.docsFor(api, components),
	}

	for _, source := range s.sources {
		found := 0
		events := source.Events()
		// Newest first so the bounded scan keeps the most recent matches.
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.After(events[j].Timestamp)
		})
		for _, e := range events {
			if !referencesAPI(&e, api) {
				continue
			}
			summary.RecentEvents = append(summary.RecentEvents, e.EventID)
			found++
			if found >= maxEvents {
				break
			}
		}
	}

	summary.normalize()
	return summary
}

func referencesAPI(e *vectorstore.Event, api string) bool {
	for _, a := range e.APIs {
		if a == api {
			return true
		}
	}
	return false
}

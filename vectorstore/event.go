// Package vectorstore defines the normalized vector event record and one
// store contract served by two backends: a file-backed brute-force store
// and a Qdrant-backed store. Both emit field-identical record shapes so
// callers are backend-agnostic.
package vectorstore

import (
	"context"
	"fmt"
	"time"
)

// SourceType identifies the domain a vector event came from.
type SourceType string

const (
	SourceChatMessage SourceType = "chat_message"
	SourceCodeCommit  SourceType = "code_commit"
	SourceCodePR      SourceType = "code_pr"
	SourceDocSection  SourceType = "doc_section"
)

// validSourceTypes is the closed set of accepted source types.
var validSourceTypes = map[SourceType]struct{}{
	SourceChatMessage: {},
	SourceCodeCommit:  {},
	SourceCodePR:      {},
	SourceDocSection:  {},
}

// Event is the normalized, typed record produced by a domain indexer.
// Once upserted it is immutable except via re-upsert of the same EventID.
type Event struct {
	EventID      string         `json:"event_id"`
	SourceType   SourceType     `json:"source_type"`
	Text         string         `json:"text"`
	Timestamp    time.Time      `json:"timestamp"`
	ServiceIDs   []string       `json:"service_ids"`
	ComponentIDs []string       `json:"component_ids"`
	APIs         []string       `json:"apis"`
	Labels       []string       `json:"labels"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// Embedding is nil until populated by the embedding provider.
	// Stores reject upserts of events without one.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Validate checks the structural invariants of an event. Canonical-id
// membership is the indexer's job, not the store's.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if _, ok := validSourceTypes[e.SourceType]; !ok {
		return fmt.Errorf("invalid source_type %q", e.SourceType)
	}
	return nil
}

// Refs returns the event's canonical-id references for validation.
func (e *Event) Refs() (services, components, apis []string) {
	return e.ServiceIDs, e.ComponentIDs, e.APIs
}

// Hit is one ranked search result.
type Hit struct {
	// ID is the backend's identifier for the stored point. For the file
	// store this is the event id; for Qdrant it is the derived point id.
	ID string

	// Event is the stored record, embedding included.
	Event Event

	// Score is cosine similarity (vectors are unit length, so this is a
	// plain dot product). Higher is more similar.
	Score float64
}

// Embedder is the slice of the embedding provider the stores need to
// embed query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the shared backend contract.
type Store interface {
	// Upsert persists events keyed by EventID, last write wins. It
	// returns an error if any event lacks an embedding; missing
	// embeddings are never silently skipped.
	Upsert(ctx context.Context, events []Event) error

	// Search embeds the query and returns up to topK hits passing the
	// filters and the inclusive since cutoff (nil since = no cutoff),
	// ranked by descending score.
	Search(ctx context.Context, query string, embedder Embedder, topK int, filters Filters, since *time.Time) ([]Hit, error)
}

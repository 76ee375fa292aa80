// Package retrieval fans a question out across the three domain vector
// stores, bounded and time-filtered, and returns lightweight snippets as
// the evidentiary basis for reasoning.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/driftwatch/metric"
	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/vectorstore"
)

// Snippet is one retrieved, stripped-down search hit. Embeddings and
// bulky payload fields never leave this package.
type Snippet struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"` // "chat", "code", or "docs"
	SourceType string         `json:"source_type"`
	Score      float64        `json:"score"`
	Text       string         `json:"text"`
	Timestamp  time.Time      `json:"timestamp"`
	Services   []string       `json:"services,omitempty"`
	Components []string       `json:"components,omitempty"`
	APIs       []string       `json:"apis,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Bundle holds the three ordered snippet lists.
type Bundle struct {
	Chat []Snippet `json:"chat"`
	Code []Snippet `json:"code"`
	Docs []Snippet `json:"docs"`
}

// Empty reports whether no domain returned evidence.
func (b *Bundle) Empty() bool {
	return b == nil || (len(b.Chat) == 0 && len(b.Code) == 0 && len(b.Docs) == 0)
}

// Limits bounds each domain search.
type Limits struct {
	TopKChat     int `yaml:"top_k_chat"`
	TopKCode     int `yaml:"top_k_code"`
	TopKDocs     int `yaml:"top_k_docs"`
	LookbackDays int `yaml:"lookback_days"`
}

// DefaultLimits returns the standard retrieval bounds.
func DefaultLimits() Limits {
	return Limits{TopKChat: 5, TopKCode: 5, TopKDocs: 3, LookbackDays: 30}
}

// Retriever issues the three domain searches sequentially; each stage is
// individually bounded, so there is no parallel fan-out.
type Retriever struct {
	chat     vectorstore.Store
	code     vectorstore.Store
	docs     vectorstore.Store
	embedder vectorstore.Embedder
	logger   *slog.Logger
	metrics  *metric.Metrics
	now      func() time.Time
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(r *Retriever) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// withClock overrides time for tests.
func withClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// NewRetriever creates a retriever over the three domain stores.
func NewRetriever(chat, code, docs vectorstore.Store, embedder vectorstore.Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		chat:     chat,
		code:     code,
		docs:     docs,
		embedder: embedder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchContext runs one bounded search per domain. The scenario scopes
// the filter to its primary API; the lookback cutoff applies to the
// time-sensitive domains (chat, code) but not to docs.
func (r *Retriever) FetchContext(ctx context.Context, scenario registry.Scenario, question string, limits Limits) (*Bundle, error) {
	filters := vectorstore.Filters{}
	if scenario.API != "" {
		filters.APIs = []string{scenario.API}
	}

	var cutoff *time.Time
	if limits.LookbackDays > 0 {
		t := r.now().AddDate(0, 0, -limits.LookbackDays)
		cutoff = &t
	}

	bundle := &Bundle{}

	chat, err := r.search(ctx, "chat", r.chat, question, limits.TopKChat, filters, cutoff)
	if err != nil {
		return nil, err
	}
	bundle.Chat = chat

	code, err := r.search(ctx, "code", r.code, question, limits.TopKCode, filters, cutoff)
	if err != nil {
		return nil, err
	}
	bundle.Code = code

	// Docs are not time-sensitive; stale docs are exactly the point.
	docs, err := r.search(ctx, "docs", r.docs, question, limits.TopKDocs, filters, nil)
	if err != nil {
		return nil, err
	}
	bundle.Docs = docs

	return bundle, nil
}

func (r *Retriever) search(ctx context.Context, domain string, store vectorstore.Store, question string, topK int, filters vectorstore.Filters, since *time.Time) ([]Snippet, error) {
	if store == nil {
		return nil, nil
	}
	if r.metrics != nil {
		r.metrics.SearchesIssued.WithLabelValues(domain).Inc()
	}

	hits, err := store.Search(ctx, question, r.embedder, topK, filters, since)
	if err != nil {
		return nil, &RetrievalError{Domain: domain, Err: err}
	}

	snippets := make([]Snippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, stripHit(domain, h))
	}
	return snippets, nil
}

// liteMetadataKeys are the payload fields worth carrying into a snippet.
var liteMetadataKeys = []string{"permalink", "channel", "author", "repo", "doc_id", "heading"}

// stripHit drops the embedding vector and bulky metadata from a hit.
func stripHit(domain string, h vectorstore.Hit) Snippet {
	snippet := Snippet{
		ID:         h.ID,
		Source:     domain,
		SourceType: string(h.Event.SourceType),
		Score:      h.Score,
		Text:       h.Event.Text,
		Timestamp:  h.Event.Timestamp,
		Services:   h.Event.ServiceIDs,
		Components: h.Event.ComponentIDs,
		APIs:       h.Event.APIs,
		Labels:     h.Event.Labels,
	}

	for _, key := range liteMetadataKeys {
		if v, ok := h.Event.Metadata[key]; ok {
			if snippet.Metadata == nil {
				snippet.Metadata = make(map[string]any)
			}
			snippet.Metadata[key] = v
		}
	}
	return snippet
}

// RetrievalError wraps an embedding or vector-search backend failure.
// It is never papered over with fabricated evidence.
type RetrievalError struct {
	Domain string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed for %s: %v", e.Domain, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

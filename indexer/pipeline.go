// Package indexer drives raw domain records (chat messages, code-change
// events, documentation sections) through embedding into a vector store.
// One generic pipeline carries all three domains; only the record shape
// and the mapping function differ.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/driftwatch/metric"
	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/vectorstore"
)

// Mapper turns one raw domain record into an unembedded vector event.
type Mapper func(raw json.RawMessage) (*vectorstore.Event, error)

// BatchEmbedder is the slice of the embedding provider the pipeline uses.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) [][]float32
}

// Report summarizes one pipeline run.
type Report struct {
	// Indexed is the number of events upserted with an embedding.
	Indexed int
	// SkippedValidation counts records rejected for non-canonical ids
	// or malformed shape; each failure aborts only its own record.
	SkippedValidation int
	// SkippedEmbedding counts records whose text could not be embedded.
	SkippedEmbedding int
}

// Pipeline indexes one domain.
type Pipeline struct {
	domain    string
	registry  *registry.Registry
	embedder  BatchEmbedder
	store     vectorstore.Store
	mapper    Mapper
	batchSize int
	logger    *slog.Logger
	metrics   *metric.Metrics

	// refsFunc extracts the canonical-id references to validate for one
	// event. The default covers services/components/apis; the docs
	// domain adds the doc id carried in metadata.
	refsFunc func(*vectorstore.Event) registry.Refs
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) { p.batchSize = n }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRefsFunc overrides how canonical-id references are extracted from
// an event for validation.
func WithRefsFunc(fn func(*vectorstore.Event) registry.Refs) Option {
	return func(p *Pipeline) { p.refsFunc = fn }
}

// New creates a pipeline for one domain.
func New(domain string, reg *registry.Registry, embedder BatchEmbedder, store vectorstore.Store, mapper Mapper, opts ...Option) *Pipeline {
	p := &Pipeline{
		domain:    domain,
		registry:  reg,
		embedder:  embedder,
		store:     store,
		mapper:    mapper,
		batchSize: 32,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run indexes every record in the JSON files matching the doublestar
// pattern. Validation failures are isolated per record: the batch
// continues and the failure is counted. Only events with a successful
// embedding are upserted.
func (p *Pipeline) Run(ctx context.Context, pattern string) (*Report, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no record files match %s", pattern)
	}

	var raws []json.RawMessage
	for _, path := range paths {
		records, err := readRecordFile(path)
		if err != nil {
			return nil, err
		}
		raws = append(raws, records...)
	}

	return p.Index(ctx, raws)
}

// Index runs the pipeline over already-loaded raw records.
func (p *Pipeline) Index(ctx context.Context, raws []json.RawMessage) (*Report, error) {
	report := &Report{}
	var events []*vectorstore.Event

	for i, raw := range raws {
		event, err := p.mapper(raw)
		if err != nil {
			report.SkippedValidation++
			p.countSkip("map")
			p.logger.Warn("Record rejected by mapper", "domain", p.domain, "record", i, "error", err)
			continue
		}
		if err := event.Validate(); err != nil {
			report.SkippedValidation++
			p.countSkip("shape")
			p.logger.Warn("Record failed shape validation", "domain", p.domain, "record", i, "error", err)
			continue
		}

		refs := p.extractRefs(event)
		where := fmt.Sprintf("%s record %s", p.domain, event.EventID)
		if err := p.registry.AssertValid(refs, where); err != nil {
			// The offending record is dropped; the batch continues.
			report.SkippedValidation++
			p.countSkip("canonical")
			p.logger.Warn("Record references non-canonical ids",
				"domain", p.domain, "event_id", event.EventID, "error", err)
			continue
		}

		events = append(events, event)
	}

	if len(events) == 0 {
		return report, nil
	}

	texts := make([]string, len(events))
	for i, e := range events {
		texts[i] = e.Text
	}
	vectors := p.embedder.EmbedBatch(ctx, texts, p.batchSize)

	var embedded []vectorstore.Event
	for i, vec := range vectors {
		if vec == nil {
			report.SkippedEmbedding++
			p.countSkip("embedding")
			p.logger.Warn("Embedding failed, event not indexed",
				"domain", p.domain, "event_id", events[i].EventID)
			continue
		}
		events[i].Embedding = vec
		embedded = append(embedded, *events[i])
	}

	if len(embedded) > 0 {
		if err := p.store.Upsert(ctx, embedded); err != nil {
			return report, fmt.Errorf("upsert %s events: %w", p.domain, err)
		}
	}

	report.Indexed = len(embedded)
	if p.metrics != nil {
		p.metrics.EventsIndexed.WithLabelValues(p.domain).Add(float64(report.Indexed))
	}
	p.logger.Info("Indexing run complete",
		"domain", p.domain,
		"indexed", report.Indexed,
		"skipped_validation", report.SkippedValidation,
		"skipped_embedding", report.SkippedEmbedding)

	return report, nil
}

func (p *Pipeline) extractRefs(event *vectorstore.Event) registry.Refs {
	if p.refsFunc != nil {
		return p.refsFunc(event)
	}
	services, components, apis := event.Refs()
	return registry.Refs{Services: services, Components: components, APIs: apis}
}

func (p *Pipeline) countSkip(reason string) {
	if p.metrics != nil {
		p.metrics.EventsSkipped.WithLabelValues(p.domain, reason).Inc()
	}
}

// readRecordFile reads one JSON file holding an array of raw records.
func readRecordFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

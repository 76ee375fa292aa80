package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/driftwatch/config"
	"github.com/c360studio/driftwatch/embedding"
	"github.com/c360studio/driftwatch/graph"
	"github.com/c360studio/driftwatch/indexer"
	"github.com/c360studio/driftwatch/llm"
	"github.com/c360studio/driftwatch/metric"
	"github.com/c360studio/driftwatch/reason"
	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/retrieval"
	"github.com/c360studio/driftwatch/vectorstore"
)

// domains are the three indexed evidence sources.
var domains = map[string]indexer.Mapper{
	"chat": indexer.MapChatMessage,
	"code": indexer.MapCodeChange,
	"docs": indexer.MapDocSection,
}

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg      *config.Config
	registry *registry.Registry
	embedder *embedding.Provider
	stores   map[string]vectorstore.Store
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// newApp loads configuration and the canonical manifest, then builds
// the embedder and the three domain stores. A manifest load failure is
// fatal: nothing downstream can be trusted without the canonical sets.
func newApp(ctx context.Context, configPath string) (*app, error) {
	logger := slog.Default()

	cfg, err := config.NewLoader(logger).Load(configPath)
	if err != nil {
		return nil, err
	}

	reg, err := registry.Load(cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	embedder := embedding.NewProvider(embedding.Config{
		URL:        cfg.Embedding.URL,
		Model:      cfg.Embedding.Model,
		APIKeyEnv:  cfg.Embedding.APIKeyEnv,
		CharBudget: cfg.Embedding.CharBudget,
		Timeout:    cfg.Embedding.Timeout,
	}, embedding.WithLogger(logger))

	stores := make(map[string]vectorstore.Store, len(domains))
	for domain := range domains {
		store, err := buildStore(ctx, cfg, domain, logger)
		if err != nil {
			return nil, err
		}
		stores[domain] = store
	}

	return &app{
		cfg:      cfg,
		registry: reg,
		embedder: embedder,
		stores:   stores,
		metrics:  metric.New(prometheus.NewRegistry()),
		logger:   logger,
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config, domain string, logger *slog.Logger) (vectorstore.Store, error) {
	switch cfg.Stores.Backend {
	case "qdrant":
		store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			URL:        cfg.Stores.QdrantURL,
			APIKeyEnv:  cfg.Stores.QdrantAPIKeyEnv,
			Collection: cfg.CollectionName(domain),
			Dimension:  cfg.Embedding.Dimension,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("ensure collection for %s: %w", domain, err)
		}
		return store, nil
	default:
		return vectorstore.NewFileStore(cfg.IndexPath(domain), logger), nil
	}
}

// pipeline builds the indexing pipeline for one domain.
func (a *app) pipeline(domain string) (*indexer.Pipeline, error) {
	mapper, ok := domains[domain]
	if !ok {
		return nil, fmt.Errorf("unknown domain %q (want chat, code, or docs)", domain)
	}

	opts := []indexer.Option{
		indexer.WithBatchSize(a.cfg.Embedding.BatchSize),
		indexer.WithLogger(a.logger),
		indexer.WithMetrics(a.metrics),
	}
	if domain == "docs" {
		opts = append(opts, indexer.WithRefsFunc(indexer.DocRefs))
	}
	return indexer.New(domain, a.registry, a.embedder, a.stores[domain], mapper, opts...), nil
}

// reasoner wires the full question-answering pipeline.
func (a *app) reasoner() (*reason.Reasoner, *reason.Template, error) {
	scenarios, err := registry.LoadScenarios(a.cfg.Manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("load scenarios: %w", err)
	}
	// Scenarios steer retrieval and prompts; one naming an unknown
	// canonical id must fail here, not mid-answer.
	for _, s := range scenarios {
		if err := a.registry.AssertValid(s.Refs(), fmt.Sprintf("scenario %s", s.Name)); err != nil {
			return nil, nil, err
		}
	}
	fallback := registry.Scenario{Name: "general"}

	var mappings *graph.Mappings
	if a.cfg.Graph.MappingFile != "" {
		mappings, err = graph.LoadMappings(a.cfg.Graph.MappingFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load graph mappings: %w", err)
		}
	}

	var sources []graph.EventSource
	for _, store := range a.stores {
		if fs, ok := store.(*vectorstore.FileStore); ok {
			sources = append(sources, fs)
		}
	}

	summarizer := graph.NewSummarizer(graph.Config{
		URL:     a.cfg.Graph.NATSURL,
		Bucket:  a.cfg.Graph.Bucket,
		Timeout: a.cfg.Graph.Timeout,
	}, mappings, sources, a.logger)

	retriever := retrieval.NewRetriever(
		a.stores["chat"], a.stores["code"], a.stores["docs"],
		a.embedder,
		retrieval.WithLogger(a.logger),
		retrieval.WithMetrics(a.metrics),
	)

	client := llm.NewClient(llm.Endpoint{
		Provider: a.cfg.Model.Provider,
		URL:      a.cfg.Model.URL,
		Model:    a.cfg.Model.Model,
		Timeout:  a.cfg.Model.Timeout,
	}, llm.WithLogger(a.logger))

	template := reason.NewTemplate(a.cfg.Reason.TemplatePath, a.logger)

	r := reason.NewReasoner(
		reason.NewClassifier(scenarios, fallback),
		retriever,
		summarizer,
		client,
		template,
		reason.WithLimits(a.cfg.Reason.Limits),
		reason.WithMaxGraphEvents(a.cfg.Reason.MaxGraphEvents),
		reason.WithTemperature(a.cfg.Model.Temperature),
		reason.WithLogger(a.logger),
		reason.WithMetrics(a.metrics),
	)
	return r, template, nil
}

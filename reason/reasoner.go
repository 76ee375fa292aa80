package reason

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/c360studio/driftwatch/graph"
	"github.com/c360studio/driftwatch/llm"
	"github.com/c360studio/driftwatch/metric"
	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/retrieval"
)

const systemPrompt = "You are a precise documentation-drift analyst. Respond with a single JSON object and nothing else: no prose, no markdown fences."

// defaultTemperature keeps the single reasoning call near-deterministic.
const defaultTemperature = 0.1

// CompletionClient is the one model operation the reasoner needs.
// *llm.Client satisfies it; tests inject counting stubs.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ContextFetcher yields the vector evidence for a question. Satisfied
// by *retrieval.Retriever.
type ContextFetcher interface {
	FetchContext(ctx context.Context, scenario registry.Scenario, question string, limits retrieval.Limits) (*retrieval.Bundle, error)
}

// GraphSummarizer yields the neighborhood for a scenario's API.
// Satisfied by *graph.Summarizer.
type GraphSummarizer interface {
	Summarize(ctx context.Context, scenario registry.Scenario, maxEvents int) *graph.Summary
}

// Reasoner answers doc-drift questions: classify, gather, one model
// call, reconcile. Stages run sequentially; concurrent AnswerQuestion
// calls are independent.
type Reasoner struct {
	classifier  *Classifier
	retriever   ContextFetcher
	summarizer  GraphSummarizer
	client      CompletionClient
	template    *Template
	limits      retrieval.Limits
	maxEvents   int
	temperature float64
	logger      *slog.Logger
	metrics     *metric.Metrics
	now         func() time.Time
}

// ReasonerOption configures a Reasoner.
type ReasonerOption func(*Reasoner)

// WithLimits overrides the retrieval bounds.
func WithLimits(limits retrieval.Limits) ReasonerOption {
	return func(r *Reasoner) { r.limits = limits }
}

// WithMaxGraphEvents bounds recent events per source in the summary.
func WithMaxGraphEvents(n int) ReasonerOption {
	return func(r *Reasoner) { r.maxEvents = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ReasonerOption {
	return func(r *Reasoner) { r.logger = logger }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metric.Metrics) ReasonerOption {
	return func(r *Reasoner) { r.metrics = m }
}

// WithTemperature overrides the sampling temperature for the reasoning
// call. Values outside (0, 1] keep the near-deterministic default.
func WithTemperature(t float64) ReasonerOption {
	return func(r *Reasoner) {
		if t > 0 && t <= 1 {
			r.temperature = t
		}
	}
}

// NewReasoner wires the reasoner's collaborators together.
func NewReasoner(classifier *Classifier, retriever ContextFetcher, summarizer GraphSummarizer, client CompletionClient, template *Template, opts ...ReasonerOption) *Reasoner {
	r := &Reasoner{
		classifier:  classifier,
		retriever:   retriever,
		summarizer:  summarizer,
		client:      client,
		template:    template,
		limits:      retrieval.DefaultLimits(),
		maxEvents:   graph.DefaultMaxEvents,
		temperature: defaultTemperature,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AnswerQuestion runs the full pipeline for one question. It never
// returns an error: model failures, parse failures, and retrieval
// failures all land in Answer.Error alongside whatever was gathered.
// No automatic retries; callers decide whether to ask again.
func (r *Reasoner) AnswerQuestion(ctx context.Context, question, source string) *Answer {
	start := r.now()
	defer func() {
		if r.metrics != nil {
			r.metrics.AnswerDuration.Observe(time.Since(start).Seconds())
		}
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		answer := &Answer{
			Question: question,
			Summary:  "No question provided.",
			NextSteps: []string{
				"Ask a question about an API, service, or document, e.g. \"did the retry behavior of POST /v1/charges change?\"",
			},
		}
		answer.setError("empty question")
		return answer
	}

	scenario := r.classifier.Classify(question)
	answer := &Answer{
		Question: question,
		Scenario: scenario.Name,
		Metadata: map[string]any{},
	}

	bundle, err := r.retriever.FetchContext(ctx, scenario, question, r.limits)
	if err != nil {
		r.logger.Warn("retrieval failed", "scenario", scenario.Name, "error", err)
		answer.Metadata["retrieval_error"] = err.Error()
		bundle = &retrieval.Bundle{}
	}

	summary := r.summarizer.Summarize(ctx, scenario, r.maxEvents)
	answer.Evidence = flattenEvidence(bundle)
	if answer.Evidence == nil {
		answer.Evidence = []Evidence{}
	}

	if len(answer.Evidence) == 0 && summary.Empty() {
		answer.Summary = "No evidence found for this question."
		answer.NextSteps = noEvidenceSteps(scenario)
		return answer
	}

	prompt, fromFile := r.renderPrompt(scenario, question, source, summary, answer.Evidence)
	answer.Metadata["template"] = templateLabel(fromFile)

	if r.metrics != nil {
		r.metrics.LLMCalls.Inc()
	}
	temperature := r.temperature
	resp, err := r.client.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
	})
	if err != nil {
		rerr := &ReasoningError{Stage: "completion", Err: err}
		r.logger.Warn("completion failed", "scenario", scenario.Name, "error", err)
		answer.Summary = "Summary unavailable."
		answer.setError(rerr.Error())
		return answer
	}
	answer.Raw = resp.Content
	answer.Metadata["request_id"] = resp.RequestID
	if resp.Model != "" {
		answer.Metadata["model"] = resp.Model
	}

	var payload modelPayload
	repaired, err := llm.DecodeObject(resp.Content, &payload)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ParseFailures.Inc()
		}
		rerr := &ReasoningError{Stage: "parse", Err: err}
		r.logger.Warn("response unparsable", "scenario", scenario.Name, "error", err)
		answer.Summary = "Summary unavailable."
		answer.setError(rerr.Error())
		return answer
	}

	var warnings []string
	if repaired {
		warnings = append(warnings, "response required JSON repair")
	}
	warnings = append(warnings, payload.Warnings...)

	answer.Summary = payload.Summary
	sections, w := reconcileSections(payload.Sections)
	warnings = append(warnings, w...)
	answer.Sections = sections

	impacted, w := reconcileImpacted(payload.Impacted, payload.ImpactedEntities)
	warnings = append(warnings, w...)
	answer.Impacted = impacted

	answer.DocDrift = reconcileDocDrift(payload.DocDrift, impacted)
	answer.NextSteps = payload.NextSteps

	if len(warnings) > 0 {
		answer.Metadata["parse_warnings"] = warnings
	}
	return answer
}

// RenderPrompt builds the prompt for a question without issuing the
// model call. Debug surface for prompt iteration.
func (r *Reasoner) RenderPrompt(ctx context.Context, question, source string) (string, error) {
	question = strings.TrimSpace(question)
	scenario := r.classifier.Classify(question)

	bundle, err := r.retriever.FetchContext(ctx, scenario, question, r.limits)
	if err != nil {
		return "", err
	}
	summary := r.summarizer.Summarize(ctx, scenario, r.maxEvents)
	prompt, _ := r.renderPrompt(scenario, question, source, summary, flattenEvidence(bundle))
	return prompt, nil
}

func (r *Reasoner) renderPrompt(scenario registry.Scenario, question, source string, summary *graph.Summary, evidence []Evidence) (string, bool) {
	evidenceJSON, err := json.MarshalIndent(evidence, "", "  ")
	if err != nil {
		evidenceJSON = []byte("[]")
	}

	var graphText string
	if summary != nil {
		graphText = graphLines(summary.API, summary.Services, summary.Components, summary.Docs, summary.RecentEvents)
	}

	return r.template.Render(promptVars{
		SourceCommand: source,
		ScenarioName:  scenario.Name,
		ScenarioAPI:   scenario.API,
		ScenarioDesc:  scenario.Description,
		Question:      question,
		Graph:         graphText,
		Evidence:      string(evidenceJSON),
	})
}

func templateLabel(fromFile bool) string {
	if fromFile {
		return "file"
	}
	return "builtin"
}

func noEvidenceSteps(scenario registry.Scenario) []string {
	steps := []string{
		"Index recent chat, code, and doc records for this area before asking again.",
		"Check that the question names a known API, service, or document.",
	}
	if scenario.API != "" {
		steps = append(steps, "Verify the graph mapping file lists entities for "+scenario.API+".")
	}
	return steps
}

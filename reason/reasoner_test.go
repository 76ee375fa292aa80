package reason

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/driftwatch/graph"
	"github.com/c360studio/driftwatch/llm"
	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/retrieval"
	"github.com/c360studio/driftwatch/vectorstore"
)

// countingClient returns a canned response, counting calls and keeping
// the last request.
type countingClient struct {
	content string
	err     error
	calls   int
	lastReq llm.Request
}

func (c *countingClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.calls++
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{RequestID: "req-1", Content: c.content, Model: "test-model"}, nil
}

// fetcherStub returns a fixed bundle.
type fetcherStub struct {
	bundle *retrieval.Bundle
	err    error
	calls  int
}

func (f *fetcherStub) FetchContext(_ context.Context, _ registry.Scenario, _ string, _ retrieval.Limits) (*retrieval.Bundle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

// summarizerStub returns a fixed summary.
type summarizerStub struct {
	summary *graph.Summary
}

func (s *summarizerStub) Summarize(_ context.Context, scenario registry.Scenario, _ int) *graph.Summary {
	if s.summary != nil {
		return s.summary
	}
	return &graph.Summary{API: scenario.API}
}

func chargeScenarios() ([]registry.Scenario, registry.Scenario) {
	scenarios := []registry.Scenario{
		{
			Name:        "charge-intake",
			API:         "POST /v1/charges",
			Services:    []string{"payments"},
			Docs:        []string{"charges-api"},
			Description: "Charge creation flow",
			Keywords:    []string{"charge", "idempotency"},
		},
		{
			Name:     "refund-flow",
			API:      "POST /v1/refunds",
			Keywords: []string{"refund"},
		},
	}
	fallback := registry.Scenario{Name: "general", Keywords: nil}
	return scenarios, fallback
}

func newTestReasoner(t *testing.T, fetcher ContextFetcher, summarizer GraphSummarizer, client CompletionClient) *Reasoner {
	t.Helper()
	scenarios, fallback := chargeScenarios()
	tmpl := NewTemplate("", nil)
	t.Cleanup(func() { tmpl.Close() })
	return NewReasoner(NewClassifier(scenarios, fallback), fetcher, summarizer, client, tmpl)
}

func chatBundle() *retrieval.Bundle {
	return &retrieval.Bundle{
		Chat: []retrieval.Snippet{{
			ID:        "slack-1",
			Source:    "chat",
			Score:     0.9,
			Text:      "we   doubled the\tretry budget\non POST /v1/charges",
			Timestamp: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
			APIs:      []string{"POST /v1/charges"},
			Metadata:  map[string]any{"permalink": "https://acme.slack.com/archives/C1/p1"},
		}},
	}
}

func TestAnswerQuestionEmptyQuestion(t *testing.T) {
	client := &countingClient{}
	fetcher := &fetcherStub{bundle: chatBundle()}
	r := newTestReasoner(t, fetcher, &summarizerStub{}, client)

	answer := r.AnswerQuestion(context.Background(), "   \t ", "ask")

	require.NotNil(t, answer.Error)
	assert.Contains(t, *answer.Error, "empty question")
	assert.NotEmpty(t, answer.NextSteps)
	assert.Zero(t, client.calls, "empty question must not reach the model")
	assert.Zero(t, fetcher.calls, "empty question must not trigger retrieval")
}

func TestAnswerQuestionImpactedFromModel(t *testing.T) {
	client := &countingClient{content: `{
		"summary": "Retry budget doubled; charges doc is stale.",
		"impacted": {"apis": ["POST /v1/charges"], "services": ["payments"]},
		"next_steps": ["Update charges-api retry section"]
	}`}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	answer := r.AnswerQuestion(context.Background(), "did the charge retry budget change?", "ask")

	assert.Nil(t, answer.Error)
	assert.Equal(t, "charge-intake", answer.Scenario)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, []string{"POST /v1/charges"}, answer.Impacted["apis"])
	assert.Equal(t, []string{"payments"}, answer.Impacted["services"])
	assert.NotContains(t, answer.Impacted, "docs")
	require.Len(t, answer.Evidence, 1)
	assert.Equal(t, "slack-1", answer.Evidence[0].ID)
	assert.Equal(t, "we doubled the retry budget on POST /v1/charges", answer.Evidence[0].Text)
	assert.Equal(t, "req-1", answer.Metadata["request_id"])
}

func TestAnswerQuestionNoEvidenceTerminal(t *testing.T) {
	client := &countingClient{}
	r := newTestReasoner(t, &fetcherStub{bundle: &retrieval.Bundle{}}, &summarizerStub{summary: &graph.Summary{}}, client)

	answer := r.AnswerQuestion(context.Background(), "did anything change with refunds?", "ask")

	assert.Nil(t, answer.Error)
	assert.Empty(t, answer.Evidence)
	assert.NotNil(t, answer.Evidence, "evidence is an empty list, not null")
	assert.NotEmpty(t, answer.NextSteps)
	assert.Zero(t, client.calls, "no evidence must not reach the model")
}

func TestAnswerQuestionRetrievalFailureDegrades(t *testing.T) {
	client := &countingClient{content: `{"summary": "graph only"}`}
	fetcher := &fetcherStub{err: &retrieval.RetrievalError{Domain: "chat", Err: errors.New("backend down")}}
	summarizer := &summarizerStub{summary: &graph.Summary{
		API:      "POST /v1/charges",
		Services: []string{"payments"},
	}}
	r := newTestReasoner(t, fetcher, summarizer, client)

	answer := r.AnswerQuestion(context.Background(), "charge intake ok?", "ask")

	assert.Nil(t, answer.Error, "graph summary alone still yields an answer")
	assert.Equal(t, 1, client.calls)
	assert.Contains(t, answer.Metadata["retrieval_error"], "backend down")
}

func TestAnswerQuestionCompletionFailure(t *testing.T) {
	client := &countingClient{err: errors.New("connection refused")}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	answer := r.AnswerQuestion(context.Background(), "charge retries?", "ask")

	require.NotNil(t, answer.Error)
	assert.Contains(t, *answer.Error, "completion")
	assert.Equal(t, "Summary unavailable.", answer.Summary)
	require.Len(t, answer.Evidence, 1, "gathered evidence survives the failure")
}

func TestAnswerQuestionParseFailure(t *testing.T) {
	client := &countingClient{content: "I cannot answer in JSON, sorry."}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	answer := r.AnswerQuestion(context.Background(), "charge retries?", "ask")

	require.NotNil(t, answer.Error)
	assert.Contains(t, *answer.Error, "parse")
	assert.Equal(t, "I cannot answer in JSON, sorry.", answer.Raw)
	assert.Equal(t, "Summary unavailable.", answer.Summary)
}

func TestAnswerQuestionSynthesizesDocDrift(t *testing.T) {
	client := &countingClient{content: `{
		"summary": "Docs stale.",
		"impacted": {"apis": ["POST /v1/charges"], "docs": ["charges-api"]}
	}`}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	answer := r.AnswerQuestion(context.Background(), "is the charge doc current?", "ask")

	require.Len(t, answer.DocDrift, 1)
	assert.Equal(t, "charges-api", answer.DocDrift[0].Doc)
	assert.Contains(t, answer.DocDrift[0].Issue, "POST /v1/charges")
}

func TestCompletionTemperature(t *testing.T) {
	client := &countingClient{content: `{"summary": "ok"}`}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	r.AnswerQuestion(context.Background(), "charge retries?", "ask")

	require.Equal(t, 1, client.calls)
	require.NotNil(t, client.lastReq.Temperature)
	assert.InDelta(t, 0.1, *client.lastReq.Temperature, 1e-9, "default temperature")
}

func TestCompletionTemperatureConfigured(t *testing.T) {
	client := &countingClient{content: `{"summary": "ok"}`}
	scenarios, fallback := chargeScenarios()
	tmpl := NewTemplate("", nil)
	t.Cleanup(func() { tmpl.Close() })
	r := NewReasoner(NewClassifier(scenarios, fallback),
		&fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client, tmpl,
		WithTemperature(0.7))

	r.AnswerQuestion(context.Background(), "charge retries?", "ask")

	require.NotNil(t, client.lastReq.Temperature)
	assert.InDelta(t, 0.7, *client.lastReq.Temperature, 1e-9)

	// Out-of-range values keep the default.
	r = NewReasoner(NewClassifier(scenarios, fallback),
		&fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client, tmpl,
		WithTemperature(-1))
	r.AnswerQuestion(context.Background(), "charge retries?", "ask")
	assert.InDelta(t, 0.1, *client.lastReq.Temperature, 1e-9)
}

func TestClassifierFirstMatchWins(t *testing.T) {
	scenarios, fallback := chargeScenarios()
	c := NewClassifier(scenarios, fallback)

	assert.Equal(t, "charge-intake", c.Classify("Did the CHARGE flow change?").Name)
	assert.Equal(t, "refund-flow", c.Classify("customer wants a refund").Name)
	assert.Equal(t, "charge-intake", c.Classify("refund after charge").Name, "declaration order wins")
	assert.Equal(t, "general", c.Classify("what color is the sky").Name)
}

func TestRenderPromptDebug(t *testing.T) {
	client := &countingClient{}
	r := newTestReasoner(t, &fetcherStub{bundle: chatBundle()}, &summarizerStub{}, client)

	prompt, err := r.RenderPrompt(context.Background(), "did the charge retry budget change?", "prompt")
	require.NoError(t, err)
	assert.Contains(t, prompt, "did the charge retry budget change?")
	assert.Contains(t, prompt, "slack-1")
	assert.Zero(t, client.calls, "debug rendering must not call the model")
}

// End to end over real collaborators: three indexed chat messages, a
// keyword question, file-backed search, fallback graph path.
func TestAnswerQuestionOverLocalIndex(t *testing.T) {
	dir := t.TempDir()
	store := vectorstore.NewFileStore(filepath.Join(dir, "chat.json"), nil)

	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	events := []vectorstore.Event{
		{EventID: "slack-1", SourceType: vectorstore.SourceChatMessage, Text: "idempotency keys now expire after 24h on POST /v1/charges", Timestamp: ts, APIs: []string{"POST /v1/charges"}, Embedding: []float32{1, 0}},
		{EventID: "slack-2", SourceType: vectorstore.SourceChatMessage, Text: "lunch options thread", Timestamp: ts, Embedding: []float32{0, 1}},
		{EventID: "slack-3", SourceType: vectorstore.SourceChatMessage, Text: "deploy window moved", Timestamp: ts, Embedding: []float32{0, 1}},
	}
	require.NoError(t, store.Upsert(context.Background(), events))

	retriever := retrieval.NewRetriever(store, nil, nil, fixedEmbedder{})
	summarizer := graph.NewSummarizer(graph.Config{}, &graph.Mappings{
		APIComponents:    map[string][]string{"POST /v1/charges": {"charge-intake-svc"}},
		ComponentService: map[string]string{"charge-intake-svc": "payments"},
	}, []graph.EventSource{store}, nil)

	client := &countingClient{content: `{
		"summary": "Idempotency key TTL changed.",
		"impacted_entities": [{"type": "api", "id": "POST /v1/charges"}]
	}`}

	scenarios, fallback := chargeScenarios()
	tmpl := NewTemplate("", nil)
	defer tmpl.Close()
	r := NewReasoner(NewClassifier(scenarios, fallback), retriever, summarizer, client, tmpl,
		WithLimits(retrieval.Limits{TopKChat: 3, TopKCode: 3, TopKDocs: 3, LookbackDays: 0}))

	answer := r.AnswerQuestion(context.Background(), "when do idempotency keys expire now?", "ask")

	assert.Nil(t, answer.Error)
	assert.Equal(t, "charge-intake", answer.Scenario, "keyword routes to the charge scenario")
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, []string{"POST /v1/charges"}, answer.Impacted["apis"])

	var chatSources int
	for _, e := range answer.Evidence {
		if e.Source == "chat" {
			chatSources++
		}
	}
	assert.Greater(t, chatSources, 0, "at least one chat evidence entry")
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

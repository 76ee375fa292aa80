package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/driftwatch/registry"
	"github.com/c360studio/driftwatch/vectorstore"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

// recordingStore replays canned hits and records the search arguments.
type recordingStore struct {
	hits    []vectorstore.Hit
	err     error
	topK    int
	filters vectorstore.Filters
	since   *time.Time
	calls   int
}

func (s *recordingStore) Upsert(_ context.Context, _ []vectorstore.Event) error { return nil }

func (s *recordingStore) Search(_ context.Context, _ string, _ vectorstore.Embedder, topK int, filters vectorstore.Filters, since *time.Time) ([]vectorstore.Hit, error) {
	s.calls++
	s.topK = topK
	s.filters = filters
	s.since = since
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func hit(id string, st vectorstore.SourceType, score float64, meta map[string]any) vectorstore.Hit {
	return vectorstore.Hit{
		ID:    id,
		Score: score,
		Event: vectorstore.Event{
			EventID:    id,
			SourceType: st,
			Text:       "text for " + id,
			Timestamp:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			APIs:       []string{"POST /v1/charges"},
			Metadata:   meta,
			Embedding:  []float32{1, 0},
		},
	}
}

func TestFetchContextScopesAndBounds(t *testing.T) {
	chat := &recordingStore{hits: []vectorstore.Hit{
		hit("slack-1", vectorstore.SourceChatMessage, 0.9, map[string]any{
			"permalink": "https://acme.slack.com/archives/C1/p1",
			"channel":   "#payments",
			"raw_blob":  "should not survive",
		}),
	}}
	code := &recordingStore{hits: []vectorstore.Hit{
		hit("pr-payments-api-41", vectorstore.SourceCodePR, 0.8, nil),
	}}
	docs := &recordingStore{hits: []vectorstore.Hit{
		hit("charges-api#idempotency", vectorstore.SourceDocSection, 0.7, map[string]any{"doc_id": "charges-api"}),
	}}

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	r := NewRetriever(chat, code, docs, fixedEmbedder{}, withClock(func() time.Time { return now }))

	scenario := registry.Scenario{Name: "charge-intake", API: "POST /v1/charges"}
	bundle, err := r.FetchContext(context.Background(), scenario, "did retries change?", Limits{
		TopKChat: 5, TopKCode: 4, TopKDocs: 3, LookbackDays: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, chat.topK)
	assert.Equal(t, 4, code.topK)
	assert.Equal(t, 3, docs.topK)
	assert.Equal(t, []string{"POST /v1/charges"}, chat.filters.APIs)

	wantCutoff := now.AddDate(0, 0, -30)
	require.NotNil(t, chat.since)
	assert.True(t, chat.since.Equal(wantCutoff))
	require.NotNil(t, code.since)
	assert.Nil(t, docs.since, "docs search should not be time-bounded")

	require.Len(t, bundle.Chat, 1)
	require.Len(t, bundle.Code, 1)
	require.Len(t, bundle.Docs, 1)
	assert.Equal(t, "chat", bundle.Chat[0].Source)
	assert.Equal(t, string(vectorstore.SourceChatMessage), bundle.Chat[0].SourceType)
	assert.False(t, bundle.Empty())
}

func TestFetchContextStripsSnippets(t *testing.T) {
	chat := &recordingStore{hits: []vectorstore.Hit{
		hit("slack-1", vectorstore.SourceChatMessage, 0.9, map[string]any{
			"permalink": "https://acme.slack.com/archives/C1/p1",
			"author":    "maria",
			"raw_blob":  "x",
		}),
	}}
	r := NewRetriever(chat, &recordingStore{}, &recordingStore{}, fixedEmbedder{})

	bundle, err := r.FetchContext(context.Background(), registry.Scenario{API: "POST /v1/charges"}, "q", DefaultLimits())
	require.NoError(t, err)
	require.Len(t, bundle.Chat, 1)

	s := bundle.Chat[0]
	assert.Equal(t, "https://acme.slack.com/archives/C1/p1", s.Metadata["permalink"])
	assert.Equal(t, "maria", s.Metadata["author"])
	assert.NotContains(t, s.Metadata, "raw_blob")
}

func TestFetchContextSurfacesStoreFailure(t *testing.T) {
	code := &recordingStore{err: errors.New("backend down")}
	r := NewRetriever(&recordingStore{}, code, &recordingStore{}, fixedEmbedder{})

	_, err := r.FetchContext(context.Background(), registry.Scenario{API: "POST /v1/charges"}, "q", DefaultLimits())
	require.Error(t, err)

	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "code", re.Domain)
}

func TestFetchContextNilStoreSkipped(t *testing.T) {
	chat := &recordingStore{hits: []vectorstore.Hit{hit("slack-1", vectorstore.SourceChatMessage, 0.5, nil)}}
	r := NewRetriever(chat, nil, nil, fixedEmbedder{})

	bundle, err := r.FetchContext(context.Background(), registry.Scenario{}, "q", DefaultLimits())
	require.NoError(t, err)
	assert.Len(t, bundle.Chat, 1)
	assert.Empty(t, bundle.Code)
	assert.Empty(t, bundle.Docs)
}

func TestFetchContextNoLookback(t *testing.T) {
	chat := &recordingStore{}
	r := NewRetriever(chat, &recordingStore{}, &recordingStore{}, fixedEmbedder{})

	_, err := r.FetchContext(context.Background(), registry.Scenario{}, "q", Limits{TopKChat: 2, TopKCode: 2, TopKDocs: 2})
	require.NoError(t, err)
	assert.Nil(t, chat.since)
}

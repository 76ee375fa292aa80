package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// pointNamespace is the fixed UUID namespace for deriving Qdrant point
// ids from event ids. The mapping must stay stable across processes so
// repeated upserts overwrite rather than duplicate.
var pointNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") // RFC 4122 DNS namespace

// PointID maps an arbitrary event id to a deterministic Qdrant point id.
func PointID(eventID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(eventID)).String()
}

// QdrantConfig configures a Qdrant-backed store.
type QdrantConfig struct {
	// URL is the Qdrant HTTP endpoint, e.g. http://localhost:6333.
	URL string `yaml:"url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Collection is the target collection for this logical domain.
	Collection string `yaml:"collection"`

	// Dimension is the fixed vector dimension for collection creation.
	Dimension int `yaml:"dimension"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// QdrantStore is a vector store backed by a remote Qdrant collection.
// Backend errors propagate; this store never silently degrades.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     *slog.Logger
}

// NewQdrantStore creates a store for one collection. It returns an error
// when the backend address or collection is missing; nothing downstream
// can hide that misconfiguration.
func NewQdrantStore(cfg QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	return &QdrantStore{
		url:        cfg.URL,
		apiKey:     apiKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// EnsureCollection creates the target collection with a fixed dimension
// and cosine metric. Creation is idempotent: an already-existing
// collection is not an error.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	if s.dimension <= 0 {
		return fmt.Errorf("qdrant dimension must be positive, got %d", s.dimension)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
	if err != nil {
		// 409 means the collection already exists.
		if status == http.StatusConflict {
			return nil
		}
		return err
	}
	return nil
}

// qdrantPoint is the wire shape of one stored point.
type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes events as points keyed by the namespace-hashed event id,
// so repeated upserts overwrite. wait=true means writes are acknowledged
// before the call returns.
func (s *QdrantStore) Upsert(ctx context.Context, events []Event) error {
	points := make([]qdrantPoint, 0, len(events))
	for i := range events {
		e := &events[i]
		if err := e.Validate(); err != nil {
			return err
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("event %s has no embedding", e.EventID)
		}

		payload, err := eventPayload(e)
		if err != nil {
			return err
		}
		points = append(points, qdrantPoint{
			ID:      PointID(e.EventID),
			Vector:  e.Embedding,
			Payload: payload,
		})
	}

	if len(points) == 0 {
		return nil
	}

	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if _, err := s.doJSON(ctx, http.MethodPut, url, body, nil); err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// eventPayload marshals the record shape plus a derived numeric timestamp
// for range filtering. The embedding lives in the point vector, not the
// payload.
func eventPayload(e *Event) (map[string]any, error) {
	stripped := *e
	stripped.Embedding = nil

	data, err := json.Marshal(&stripped)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.EventID, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload round-trip for %s: %w", e.EventID, err)
	}

	payload["ts"] = e.Timestamp.Unix()
	return payload, nil
}

// Search builds an OR-within-field / AND-across-fields filter clause plus
// an inclusive lower-bound timestamp condition, then queries Qdrant.
func (s *QdrantStore) Search(ctx context.Context, query string, embedder Embedder, topK int, filters Filters, since *time.Time) ([]Hit, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := map[string]any{
		"vector":       queryVec,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
	}
	if clause := buildFilterClause(filters, since); clause != nil {
		req["filter"] = clause
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if _, err := s.doJSON(ctx, http.MethodPost, url, req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		event, err := eventFromPayload(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode search payload: %w", err)
		}
		event.Embedding = r.Vector
		hits = append(hits, Hit{ID: r.ID, Event: event, Score: r.Score})
	}
	return hits, nil
}

// buildFilterClause translates Filters and the since cutoff into a Qdrant
// must-clause: match-any within each field, all conditions required.
func buildFilterClause(filters Filters, since *time.Time) map[string]any {
	var must []map[string]any

	fields := []struct {
		key    string
		values []string
	}{
		{"service_ids", filters.Services},
		{"component_ids", filters.Components},
		{"apis", filters.APIs},
		{"labels", filters.Labels},
	}
	for _, f := range fields {
		if len(f.values) == 0 {
			continue
		}
		must = append(must, map[string]any{
			"key":   f.key,
			"match": map[string]any{"any": f.values},
		})
	}

	if since != nil {
		must = append(must, map[string]any{
			"key":   "ts",
			"range": map[string]any{"gte": since.Unix()},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// eventFromPayload reverses eventPayload into the shared record shape.
func eventFromPayload(payload map[string]any) (Event, error) {
	delete(payload, "ts")

	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// doJSON issues one JSON request and decodes the response into out when
// non-nil. It returns the HTTP status alongside any error so callers can
// special-case statuses like conflict.
func (s *QdrantStore) doJSON(ctx context.Context, method, url string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

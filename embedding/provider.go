// Package embedding turns text into unit-normalized embedding vectors via
// an OpenAI-compatible embeddings endpoint. Batches are embedded together;
// on batch failure the provider falls back to per-item requests so one
// malformed text cannot poison the whole batch.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// DefaultCharBudget is the per-text character budget before truncation.
const DefaultCharBudget = 8000

// Config configures the embedding provider.
type Config struct {
	// URL is the base API URL (default https://api.openai.com/v1).
	URL string `yaml:"url"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// CharBudget truncates each text before sending. 0 uses the default.
	CharBudget int `yaml:"char_budget"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout"`
}

// Provider is a pooled embeddings client.
type Provider struct {
	baseURL    string
	model      string
	apiKey     string
	charBudget int
	dimension  int
	client     *http.Client
	logger     *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client. Tests inject a stubbed
// transport this way.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates an embeddings client from config.
func NewProvider(cfg Config, opts ...Option) *Provider {
	if cfg.URL == "" {
		cfg.URL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultCharBudget
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var apiKey string
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}

	p := &Provider{
		baseURL:    cfg.URL,
		model:      cfg.Model,
		apiKey:     apiKey,
		charBudget: cfg.CharBudget,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Dimension returns the vector dimensionality, discovered lazily from the
// first successful embed. 0 until then.
func (p *Provider) Dimension() int { return p.dimension }

// Embed returns a unit-normalized embedding for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.request(ctx, []string{p.truncate(text)})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in batches of batchSize and returns a slice
// aligned with the input order: entry i is the vector for texts[i], or
// nil when that text could not be embedded. The result always has
// len(texts) entries.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, batchSize int) [][]float32 {
	if batchSize <= 0 {
		batchSize = 32
	}

	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := make([]string, end-start)
		for i, text := range texts[start:end] {
			batch[i] = p.truncate(text)
		}

		vectors, err := p.request(ctx, batch)
		if err == nil && len(vectors) == len(batch) {
			copy(out[start:end], vectors)
			continue
		}

		// Batch failed: retry per item so one bad text cannot sink
		// its neighbors.
		p.logger.Warn("Batch embed failed, retrying per item",
			"batch_start", start,
			"batch_size", len(batch),
			"error", err)
		for i, text := range batch {
			vec, itemErr := p.request(ctx, []string{text})
			if itemErr != nil || len(vec) == 0 {
				p.logger.Warn("Embed failed for item", "index", start+i, "error", itemErr)
				continue
			}
			out[start+i] = vec[0]
		}
	}

	return out
}

// truncate caps text at the character budget on a rune boundary.
func (p *Provider) truncate(text string) string {
	if len(text) <= p.charBudget {
		return text
	}
	runes := []rune(text)
	if len(runes) <= p.charBudget {
		return text
	}
	return string(runes[:p.charBudget])
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// maxAttempts bounds the embeddings call against rate limits and
// transient server errors.
const maxAttempts = 3

// request issues an embeddings call, retrying rate limits and server
// errors, and normalizes every vector. A Retry-After header on 429/5xx
// responses sets the wait; otherwise the delay backs off per attempt.
func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		vectors, status, retryAfter, err := p.attempt(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if !retryable(status) || attempt == maxAttempts-1 {
			break
		}

		delay := retryAfter
		if delay < 0 {
			delay = retryDelay(attempt)
		}
		p.logger.Warn("Embeddings call failed, retrying",
			"status", status,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// retryable reports whether a status warrants another attempt. Status 0
// means the request never got a response.
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || status >= 500
}

func retryDelay(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 500 * time.Millisecond
}

// parseRetryAfter reads a Retry-After header in seconds. Returns -1 when
// absent or unparsable so callers fall back to backoff.
func parseRetryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return -1
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return -1
	}
	return time.Duration(secs) * time.Second
}

// attempt issues a single embeddings call. The returned status is the
// HTTP status code, 0 for transport failures, or -1 for errors raised
// before the request was sent.
func (p *Provider) attempt(ctx context.Context, texts []string) ([][]float32, int, time.Duration, error) {
	body, err := json.Marshal(embedRequest{Input: texts, Model: p.model})
	if err != nil {
		return nil, -1, -1, fmt.Errorf("marshal embed request: %w", err)
	}

	url := p.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, -1, -1, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, -1, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("embeddings API error (status %d): %s", resp.StatusCode, payload)
		return nil, resp.StatusCode, parseRetryAfter(resp.Header), err
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, -1, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, resp.StatusCode, -1, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	// The API reports an index per vector; order by it rather than
	// trusting response order.
	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, resp.StatusCode, -1, fmt.Errorf("embeddings API returned out-of-range index %d", item.Index)
		}
		vectors[item.Index] = Normalize(item.Embedding)
	}

	if p.dimension == 0 && len(vectors) > 0 && vectors[0] != nil {
		p.dimension = len(vectors[0])
	}

	return vectors, resp.StatusCode, -1, nil
}

// Normalize scales v to unit L2 length so downstream similarity reduces
// to a dot product. Zero vectors are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

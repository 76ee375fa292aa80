package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

// embedTransport serves canned embedding responses. Single-item requests
// containing failWord fail so batch fallback can be exercised; failFirst
// fails that many leading calls with failStatus so retries can be
// exercised.
type embedTransport struct {
	failWord   string
	failBatch  bool
	failFirst  int
	failStatus int
	calls      int
}

func (t *embedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++

	if t.failFirst > 0 {
		t.failFirst--
		return errorResponse(t.failStatus), nil
	}

	var body struct {
		Input []string `json:"input"`
	}
	payload, _ := io.ReadAll(req.Body)
	if err := json.Unmarshal(payload, &body); err != nil {
		return errorResponse(400), nil
	}

	if t.failBatch && len(body.Input) > 1 {
		return errorResponse(500), nil
	}
	for _, text := range body.Input {
		if t.failWord != "" && strings.Contains(text, t.failWord) {
			return errorResponse(400), nil
		}
	}

	type item struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	resp := struct {
		Data []item `json:"data"`
	}{}
	for i := range body.Input {
		// Distinct, non-normalized vectors; length encodes identity.
		resp.Data = append(resp.Data, item{Index: i, Embedding: []float32{3, 4, float32(len(body.Input[i]))}})
	}
	out, _ := json.Marshal(resp)
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(string(out))),
		Header:     make(http.Header),
	}, nil
}

func errorResponse(status int) *http.Response {
	header := make(http.Header)
	// Instant retries keep tests fast.
	header.Set("Retry-After", "0")
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(fmt.Sprintf(`{"error":%d}`, status))),
		Header:     header,
	}
}

func newTestProvider(transport *embedTransport) *Provider {
	return NewProvider(
		Config{URL: "http://embeddings.invalid/v1", Model: "test-embed"},
		WithHTTPClient(&http.Client{Transport: transport}),
	)
}

func TestEmbedNormalizesToUnitLength(t *testing.T) {
	p := newTestProvider(&embedTransport{})

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("vector not unit length: |v|^2 = %f", sum)
	}
	if p.Dimension() != 3 {
		t.Errorf("dimension = %d, want 3", p.Dimension())
	}
}

func TestEmbedBatchAlignment(t *testing.T) {
	p := newTestProvider(&embedTransport{})

	texts := []string{"one", "two", "three", "four", "five"}
	out := p.EmbedBatch(context.Background(), texts, 2)

	if len(out) != len(texts) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(texts))
	}
	for i, vec := range out {
		if vec == nil {
			t.Errorf("entry %d is nil", i)
		}
	}
}

func TestEmbedBatchPartialFailure(t *testing.T) {
	// Batches fail wholesale; per-item fallback succeeds except for the
	// poisoned text.
	transport := &embedTransport{failBatch: true, failWord: "poison"}
	p := newTestProvider(transport)

	texts := []string{"good one", "poison pill", "good two"}
	out := p.EmbedBatch(context.Background(), texts, 3)

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	if out[0] == nil || out[2] == nil {
		t.Error("healthy texts should have embeddings")
	}
	if out[1] != nil {
		t.Error("poisoned text should have a nil embedding")
	}
}

func TestTruncation(t *testing.T) {
	p := NewProvider(Config{CharBudget: 5})
	if got := p.truncate("abcdefghij"); got != "abcde" {
		t.Errorf("truncate = %q, want %q", got, "abcde")
	}
	if got := p.truncate("ab"); got != "ab" {
		t.Errorf("truncate = %q, want %q", got, "ab")
	}
}

func TestTruncationRuneBoundary(t *testing.T) {
	p := NewProvider(Config{CharBudget: 4})

	got := p.truncate("héllo wörld")
	if got != "héll" {
		t.Errorf("truncate = %q, want %q", got, "héll")
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
}

func TestEmbedRetriesRateLimit(t *testing.T) {
	// One 429 with Retry-After, then success.
	transport := &embedTransport{failFirst: 1, failStatus: 429}
	p := newTestProvider(transport)

	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec == nil {
		t.Fatal("Embed returned nil vector")
	}
	if transport.calls != 2 {
		t.Errorf("calls = %d, want 2", transport.calls)
	}
}

func TestEmbedRetriesServerError(t *testing.T) {
	transport := &embedTransport{failFirst: 2, failStatus: 503}
	p := newTestProvider(transport)

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if transport.calls != 3 {
		t.Errorf("calls = %d, want 3", transport.calls)
	}
}

func TestEmbedGivesUpAfterMaxAttempts(t *testing.T) {
	transport := &embedTransport{failFirst: 10, failStatus: 429}
	p := newTestProvider(transport)

	if _, err := p.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if transport.calls != maxAttempts {
		t.Errorf("calls = %d, want %d", transport.calls, maxAttempts)
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	transport := &embedTransport{failWord: "poison"}
	p := newTestProvider(transport)

	if _, err := p.Embed(context.Background(), "poison pill"); err == nil {
		t.Fatal("expected error for rejected input")
	}
	if transport.calls != 1 {
		t.Errorf("calls = %d, want 1", transport.calls)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	got := Normalize(v)
	for i, x := range got {
		if x != 0 {
			t.Errorf("Normalize(zero)[%d] = %f", i, x)
		}
	}
}

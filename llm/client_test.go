package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func init() {
	RegisterProvider(&stubProvider{})
}

// stubProvider is a minimal provider for exercising the client.
type stubProvider struct{}

func (s *stubProvider) Name() string                 { return "stub" }
func (s *stubProvider) BuildURL(base string) string  { return "http://stub.invalid/complete" }
func (s *stubProvider) SetHeaders(req *http.Request) {}

func (s *stubProvider) BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error) {
	return []byte(`{}`), nil
}

func (s *stubProvider) ParseResponse(body []byte, model string) (*Response, error) {
	return &Response{Content: string(body), Model: model}, nil
}

// scriptedTransport returns canned responses in order, counting calls.
type scriptedTransport struct {
	statuses []int
	body     string
	calls    int
}

func (t *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	status := t.statuses[len(t.statuses)-1]
	if t.calls < len(t.statuses) {
		status = t.statuses[t.calls]
	}
	t.calls++
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Header:     make(http.Header),
	}, nil
}

func newTestClient(transport http.RoundTripper) *Client {
	return NewClient(
		Endpoint{Provider: "stub", Model: "stub-model"},
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRetryConfig(RetryConfig{
			MaxAttempts:       3,
			BackoffBase:       time.Millisecond,
			BackoffMultiplier: 1.0,
			MaxBackoff:        time.Millisecond,
		}),
	)
}

func TestCompleteSuccess(t *testing.T) {
	transport := &scriptedTransport{statuses: []int{200}, body: `{"ok":true}`}
	client := newTestClient(transport)

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("expected a request ID")
	}
	if transport.calls != 1 {
		t.Errorf("expected 1 call, got %d", transport.calls)
	}
}

func TestCompleteRetriesTransient(t *testing.T) {
	transport := &scriptedTransport{statuses: []int{503, 429, 200}, body: `{}`}
	client := newTestClient(transport)

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete after retries: %v", err)
	}
	if transport.calls != 3 {
		t.Errorf("expected 3 calls, got %d", transport.calls)
	}
}

func TestCompleteFatalNotRetried(t *testing.T) {
	transport := &scriptedTransport{statuses: []int{401}, body: `denied`}
	client := newTestClient(transport)

	_, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsFatal(err) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("fatal error was retried: %d calls", transport.calls)
	}
}

func TestCompleteRequiresMessages(t *testing.T) {
	client := newTestClient(&scriptedTransport{statuses: []int{200}, body: `{}`})

	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{400, false},
		{401, false},
		{403, false},
		{418, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := classifyHTTPError(tt.status, []byte("body"))
			if IsTransient(err) != tt.transient {
				t.Errorf("status %d: transient = %v, want %v", tt.status, IsTransient(err), tt.transient)
			}
		})
	}
}

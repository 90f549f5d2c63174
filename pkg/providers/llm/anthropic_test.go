package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

var errGenerationStoppedForTest = errors.New("generation stopped for test")

const anthropicStreamFixture = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-3-5-sonnet-20240620","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":0}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}

event: message_stop
data: {"type":"message_stop"}

`

func TestAnthropicLLMStreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(anthropicStreamFixture))
	}))
	defer server.Close()

	l := &AnthropicLLM{
		client:    anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(server.URL)),
		model:     "claude-3-5-sonnet-20240620",
		maxTokens: 1024,
	}

	messages := []orchestrator.Message{
		{Role: "system", Content: "system instructions"},
		{Role: "user", Content: "hi"},
	}

	var got strings.Builder
	err := l.StreamComplete(context.Background(), messages, func(token string) error {
		got.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.String() != "Hello there" {
		t.Errorf("expected 'Hello there', got %q", got.String())
	}

	if l.Name() != "anthropic-llm" {
		t.Errorf("expected anthropic-llm, got %s", l.Name())
	}
}

func TestAnthropicLLMStreamCompleteCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(anthropicStreamFixture))
	}))
	defer server.Close()

	l := &AnthropicLLM{
		client:    anthropic.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(server.URL)),
		model:     "claude-3-5-sonnet-20240620",
		maxTokens: 1024,
	}

	calls := 0
	stopErr := errGenerationStoppedForTest
	err := l.StreamComplete(context.Background(), []orchestrator.Message{{Role: "user", Content: "hi"}}, func(token string) error {
		calls++
		return stopErr
	})
	if err != stopErr {
		t.Fatalf("expected the onToken error to propagate unchanged, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one token before the callback stopped the stream, got %d", calls)
	}
}

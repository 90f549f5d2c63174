package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

// OllamaLLM is a local/offline LLM Gateway backend on the official
// Ollama client, useful for development without a cloud LLM key.
type OllamaLLM struct {
	client *api.Client
	model  string
}

func NewOllamaLLM(host string, model string) (*OllamaLLM, error) {
	if host == "" {
		host = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	parsedURL, err := url.Parse(strings.TrimSuffix(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host: %w", err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &OllamaLLM{
		client: api.NewClient(parsedURL, httpClient),
		model:  model,
	}, nil
}

func (l *OllamaLLM) Name() string {
	return "ollama-llm"
}

func (l *OllamaLLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, onToken func(token string) error) error {
	apiMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream := true
	var callbackErr error
	err := l.client.Chat(ctx, &api.ChatRequest{
		Model:    l.model,
		Messages: apiMessages,
		Stream:   &stream,
	}, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		if err := onToken(resp.Message.Content); err != nil {
			callbackErr = err
			return err
		}
		return nil
	})
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		return fmt.Errorf("ollama: chat: %w", err)
	}
	return nil
}

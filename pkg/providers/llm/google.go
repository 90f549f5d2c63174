package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

// GoogleLLM is an LLM Gateway backend on the official genai SDK for
// Gemini. original_source/main.py used gemini-1.5-flash directly, so
// that is this backend's default model. It is selected with
// LLM_PROVIDER=google; the server's default LLM provider is Groq.
type GoogleLLM struct {
	client *genai.Client
	model  string
}

func NewGoogleLLM(ctx context.Context, apiKey string, model string) (*GoogleLLM, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai: new client: %w", err)
	}
	return &GoogleLLM{client: client, model: model}, nil
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}

func (l *GoogleLLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, onToken func(token string) error) error {
	var system string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	for resp, err := range l.client.Models.GenerateContentStream(ctx, l.model, contents, config) {
		if err != nil {
			return fmt.Errorf("genai: stream: %w", err)
		}
		text := resp.Text()
		if text == "" {
			continue
		}
		if err := onToken(text); err != nil {
			return err
		}
	}
	return nil
}

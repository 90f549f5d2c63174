package llm

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/lokutor-ai/voicebridge/pkg/orchestrator"
)

// OpenAILLM is an LLM Gateway backend on the official openai-go
// streaming client, grounded on MrWong99-glyphoxa's
// pkg/provider/llm/openai provider (NewStreaming/stream.Next()/
// stream.Current()).
type OpenAILLM struct {
	client oai.Client
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAILLM{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}

func (l *OpenAILLM) StreamComplete(ctx context.Context, messages []orchestrator.Message, onToken func(token string) error) error {
	var oaiMessages []oai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			oaiMessages = append(oaiMessages, oai.SystemMessage(m.Content))
		case "assistant":
			oaiMessages = append(oaiMessages, oai.AssistantMessage(m.Content))
		default:
			oaiMessages = append(oaiMessages, oai.UserMessage(m.Content))
		}
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(l.model),
		Messages: oaiMessages,
	}

	stream := l.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: start stream: %w", err)
	}
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		if err := onToken(text); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai: stream: %w", err)
	}
	return nil
}

package provider

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI-backed providers.
type OpenAIConfig struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	EmbeddingDim   int
}

// OpenAIProvider implements Embedder and Completer on the OpenAI API
// using the official client.
type OpenAIProvider struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
	dimensions     int
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openai.ChatModelGPT4o
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = openai.EmbeddingModelTextEmbeddingAda002
	}
	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 1536
	}
	return &OpenAIProvider{
		client:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
		dimensions:     dim,
	}
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, &EmbeddingError{Provider: "openai", Err: err}
	}
	if len(resp.Data) == 0 {
		return nil, &EmbeddingError{Provider: "openai", Err: errors.New("empty embedding response")}
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

func (p *OpenAIProvider) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.chatModel,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", &CompletionError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: "openai", Err: errors.New("no choices in response")}
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiBackend talks to Gemini through its OpenAI-compatible chat completions endpoint.
type GeminiBackend struct {
	client          openai.Client
	model           string
	maxOutputTokens int64
}

func NewGeminiBackend(cfg BackendConfig) *GeminiBackend {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiBackend{
		client:          openai.NewClient(clientOptions(cfg)...),
		model:           model,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

func (b *GeminiBackend) Name() string {
	return ProviderGemini
}

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (string, error) {
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return "", newError(KindAuthFailure, ProviderGemini, "credential is empty")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = b.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserContent))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if b.maxOutputTokens > 0 {
		// Gemini's OpenAI-compatible endpoint reads max_tokens and ignores
		// max_completion_tokens, so the deprecated field stays.
		params.MaxTokens = openai.Int(b.maxOutputTokens)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params, option.WithAPIKey(credential))
	if err != nil {
		return "", classifyOpenAIError(ProviderGemini, err)
	}

	if len(resp.Choices) == 0 {
		return "", newError(KindMalformedResponse, ProviderGemini, "response has no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", newError(
			KindMalformedResponse,
			ProviderGemini,
			fmt.Sprintf("output text is missing (finishReason = %s)", resp.Choices[0].FinishReason),
		)
	}

	return text, nil
}

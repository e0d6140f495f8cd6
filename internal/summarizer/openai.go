package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

const defaultOpenAIModel = "gpt-5-mini"

// OpenAIBackend calls OpenAI's Responses API.
type OpenAIBackend struct {
	client          openai.Client
	model           string
	maxOutputTokens int64
}

// NewOpenAIBackend builds a backend. The credential travels with each Request.
func NewOpenAIBackend(cfg BackendConfig) *OpenAIBackend {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIBackend{
		client:          openai.NewClient(clientOptions(cfg)...),
		model:           model,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

func (b *OpenAIBackend) Name() string {
	return ProviderOpenAI
}

// Generate produces a single report from the system prompt and user content.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (string, error) {
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return "", newError(KindAuthFailure, ProviderOpenAI, "credential is empty")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = b.model
	}

	params := responses.ResponseNewParams{
		Model: openai.ChatModel(model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.UserContent),
		},
	}
	if req.SystemPrompt != "" {
		params.Instructions = openai.String(req.SystemPrompt)
	}
	if b.maxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(b.maxOutputTokens)
	}

	resp, err := b.client.Responses.New(ctx, params, option.WithAPIKey(credential))
	if err != nil {
		return "", classifyOpenAIError(ProviderOpenAI, err)
	}

	if resp.Status == "incomplete" {
		return "", newError(
			KindMalformedResponse,
			ProviderOpenAI,
			fmt.Sprintf("response is incomplete (reason = %s, maxOutputTokens = %d)",
				resp.IncompleteDetails.Reason,
				b.maxOutputTokens),
		)
	}

	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", newError(
			KindMalformedResponse,
			ProviderOpenAI,
			fmt.Sprintf("output text is missing (status = %s)", resp.Status),
		)
	}

	return text, nil
}

// clientOptions disables the SDK's own retries; a backend makes one call.
func clientOptions(cfg BackendConfig) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return opts
}

func classifyOpenAIError(provider string, err error) *Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		genErr := statusError(provider, apiErr.StatusCode, apiErr.Message)
		genErr.Cause = err

		return genErr
	}

	return transportError(provider, err)
}

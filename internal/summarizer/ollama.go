package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llama3.2:3b"
	defaultOllamaTimeout = 60 * time.Second
)

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaChatMessage `json:"message"`
	DoneReason string            `json:"done_reason"`
	Done       bool              `json:"done"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// OllamaBackend calls a locally running Ollama server. No credential is used.
type OllamaBackend struct {
	client          *resty.Client
	baseURL         string
	model           string
	maxOutputTokens int64
}

func NewOllamaBackend(cfg BackendConfig) *OllamaBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return NewOllamaBackendWithClient(cfg, client)
}

func NewOllamaBackendWithClient(cfg BackendConfig, client *resty.Client) *OllamaBackend {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultOllamaModel
	}

	client.SetRetryCount(0)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	return &OllamaBackend{
		client:          client,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

func (b *OllamaBackend) Name() string {
	return ProviderOllama
}

// Generate performs a non-streaming chat via POST /api/chat.
func (b *OllamaBackend) Generate(ctx context.Context, req Request) (string, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = b.model
	}

	messages := make([]ollamaChatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.UserContent})

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if b.maxOutputTokens > 0 {
		reqBody.Options = map[string]any{"num_predict": b.maxOutputTokens}
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(b.baseURL + "/api/chat")
	if err != nil {
		return "", transportError(ProviderOllama, err)
	}

	statusCode := resp.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", statusError(ProviderOllama, statusCode, ollamaErrorMessage(resp.Body()))
	}

	var chatResp ollamaChatResponse
	if err = json.Unmarshal(resp.Body(), &chatResp); err != nil {
		return "", &Error{
			Kind:     KindMalformedResponse,
			Provider: ProviderOllama,
			Detail:   "decode chat response",
			Cause:    err,
		}
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	if text == "" {
		return "", newError(
			KindMalformedResponse,
			ProviderOllama,
			fmt.Sprintf("output text is missing (doneReason = %s)", chatResp.DoneReason),
		)
	}

	return text, nil
}

func ollamaErrorMessage(body []byte) string {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return errResp.Error
	}
	return string(body)
}

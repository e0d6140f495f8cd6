package summarizer

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Request is a single generation call. It is passed by value and never mutated.
type Request struct {
	Provider     string
	Model        string
	Credential   string
	SystemPrompt string
	UserContent  string
}

// Backend wraps one language-model provider. Implementations make exactly one
// outbound call per Generate and return *Error on every failure.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Provider        string
	Model           string
	Credential      string
	SystemPrompt    string
	BaseURL         string
	Timeout         time.Duration
	MaxOutputTokens int64
}

// Factory builds a Backend from its configuration.
type Factory func(cfg BackendConfig) (Backend, error)

type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register(ProviderOpenAI, func(cfg BackendConfig) (Backend, error) {
		return NewOpenAIBackend(cfg), nil
	})
	r.Register(ProviderGemini, func(cfg BackendConfig) (Backend, error) {
		return NewGeminiBackend(cfg), nil
	})
	r.Register(ProviderOllama, func(cfg BackendConfig) (Backend, error) {
		return NewOllamaBackend(cfg), nil
	})

	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[normalizeProvider(name)] = factory
}

// Backend builds the backend named by cfg.Provider. An unknown provider
// yields *Error of KindUnsupportedProvider and no backend is constructed.
func (r *Registry) Backend(cfg BackendConfig) (Backend, error) {
	name := normalizeProvider(cfg.Provider)

	factory, ok := r.factories[name]
	if !ok {
		return nil, newError(
			KindUnsupportedProvider,
			name,
			fmt.Sprintf("unsupported provider %q (available: %s)", cfg.Provider, strings.Join(r.Providers(), ", ")),
		)
	}

	backend, err := factory(cfg)
	if err != nil {
		return nil, &Error{
			Kind:     KindUnsupportedProvider,
			Provider: name,
			Detail:   "build backend",
			Cause:    err,
		}
	}

	return backend, nil
}

func (r *Registry) Providers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// DefaultModel returns the model used by provider when none is configured.
func DefaultModel(provider string) string {
	switch normalizeProvider(provider) {
	case ProviderOpenAI:
		return defaultOpenAIModel
	case ProviderGemini:
		return defaultGeminiModel
	case ProviderOllama:
		return defaultOllamaModel
	default:
		return ""
	}
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

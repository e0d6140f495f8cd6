package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hoststatus/internal/domain"
	"hoststatus/internal/summarizer"
)

const (
	DefaultSystemPrompt = "You are a system administrator assistant. " +
		"Review the host status below and write a short report for a chat channel: " +
		"summarize the state, point out anything that needs attention and suggest next steps."
	DefaultUpdateSystemPrompt = "You are a system administrator assistant. " +
		"Review the package update status below and write a short report for a chat channel: " +
		"list what should be updated, highlight security-relevant packages and say whether action is needed."
)

type Config struct {
	ReportKindRaw      string        `env:"REPORT_KIND"          envDefault:"system"`
	ConfigPath         string        `env:"CONFIG_PATH"          envDefault:"config.yaml"`
	LLMProvider        string        `env:"LLM_PROVIDER"`
	LLMModel           string        `env:"LLM_MODEL"`
	APIKey             string        `env:"API_KEY"`
	OpenAIBaseURL      string        `env:"OPENAI_BASE_URL"`
	GeminiBaseURL      string        `env:"GEMINI_BASE_URL"`
	OllamaBaseURL      string        `env:"OLLAMA_BASE_URL"`
	WebhookURL         string        `env:"DISCORD_WEBHOOK_URL,required,notEmpty"`
	MaxChunkLength     int           `env:"MAX_CHUNK_LENGTH"     envDefault:"2000"`
	ReportHeader       string        `env:"REPORT_HEADER"        envDefault:"Status report:"`
	GenerationTimeout  time.Duration `env:"GENERATION_TIMEOUT"   envDefault:"60s"`
	DeliveryTimeout    time.Duration `env:"DELIVERY_TIMEOUT"     envDefault:"10s"`
	DeliveryInterval   time.Duration `env:"DELIVERY_INTERVAL"    envDefault:"1s"`
	UpdateCheckTimeout time.Duration `env:"UPDATE_CHECK_TIMEOUT" envDefault:"60s"`
	DBPath             string        `env:"DB_PATH"`
	MetricsTextfile    string        `env:"METRICS_TEXTFILE"`
	LogLevel           string        `env:"LOG_LEVEL"            envDefault:"info"`

	// Resolved from REPORT_KIND and the prompt file.
	Kind domain.ReportKind
	LLM  LLM
}

// LLM is the "llm" section of the prompt file.
type LLM struct {
	Provider           string `yaml:"provider"`
	Model              string `yaml:"model"`
	SystemPrompt       string `yaml:"system_prompt"`
	UpdateSystemPrompt string `yaml:"update_system_prompt"`
	MaxOutputTokens    int64  `yaml:"max_output_tokens"`
}

type file struct {
	LLM LLM `yaml:"llm"`
}

// Load reads .env (if present), the environment and the prompt file.
// Environment values override the prompt file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	kind, ok := domain.ParseReportKind(cfg.ReportKindRaw)
	if !ok {
		return Config{}, fmt.Errorf("unknown report kind %q (want %q or %q)",
			cfg.ReportKindRaw, domain.ReportKindSystem, domain.ReportKindUpdates)
	}
	cfg.Kind = kind

	if cfg.MaxChunkLength <= 0 {
		return Config{}, fmt.Errorf("MAX_CHUNK_LENGTH must be positive (got %d)", cfg.MaxChunkLength)
	}

	llm, err := loadFile(cfg.ConfigPath)
	if err != nil {
		return Config{}, err
	}
	cfg.LLM = resolveLLM(llm, cfg.LLMProvider, cfg.LLMModel)

	return cfg, nil
}

func loadFile(path string) (LLM, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return LLM{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LLM{}, nil
		}
		return LLM{}, fmt.Errorf("read config file: %w", err)
	}

	var f file
	if err = yaml.Unmarshal(data, &f); err != nil {
		return LLM{}, fmt.Errorf("parse config file: %w", err)
	}

	return f.LLM, nil
}

func resolveLLM(llm LLM, provider, model string) LLM {
	if p := strings.TrimSpace(provider); p != "" {
		llm.Provider = p
	}
	if m := strings.TrimSpace(model); m != "" {
		llm.Model = m
	}

	llm.Provider = strings.ToLower(strings.TrimSpace(llm.Provider))
	if llm.Provider == "" {
		llm.Provider = summarizer.ProviderOllama
	}
	if strings.TrimSpace(llm.Model) == "" {
		llm.Model = summarizer.DefaultModel(llm.Provider)
	}

	if strings.TrimSpace(llm.SystemPrompt) == "" {
		llm.SystemPrompt = DefaultSystemPrompt
	}
	if strings.TrimSpace(llm.UpdateSystemPrompt) == "" {
		llm.UpdateSystemPrompt = DefaultUpdateSystemPrompt
	}

	return llm
}

// Backend returns the generation settings for the configured report kind.
func (c Config) Backend() summarizer.BackendConfig {
	prompt := c.LLM.SystemPrompt
	if c.Kind == domain.ReportKindUpdates {
		prompt = c.LLM.UpdateSystemPrompt
	}

	var baseURL string
	switch c.LLM.Provider {
	case summarizer.ProviderOpenAI:
		baseURL = c.OpenAIBaseURL
	case summarizer.ProviderGemini:
		baseURL = c.GeminiBaseURL
	case summarizer.ProviderOllama:
		baseURL = c.OllamaBaseURL
	}

	return summarizer.BackendConfig{
		Provider:        c.LLM.Provider,
		Model:           c.LLM.Model,
		Credential:      c.APIKey,
		SystemPrompt:    prompt,
		BaseURL:         baseURL,
		Timeout:         c.GenerationTimeout,
		MaxOutputTokens: c.LLM.MaxOutputTokens,
	}
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

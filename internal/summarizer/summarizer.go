package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"hoststatus/internal/domain"
)

const defaultGenerationTimeout = 60 * time.Second

// Input describes the payload for a report request.
type Input struct {
	// Snapshot takes precedence over Text when it has fields.
	Snapshot domain.Snapshot
	// Text carries free-form diagnostic output.
	Text string
}

func (in Input) Empty() bool {
	return in.Snapshot.Len() == 0 && strings.TrimSpace(in.Text) == ""
}

// Content renders the input as the user content of a generation request.
func (in Input) Content() string {
	if in.Snapshot.Len() > 0 {
		return FormatSnapshot(in.Snapshot)
	}
	return in.Text
}

// FormatSnapshot renders fields as "name: value" lines in insertion order.
func FormatSnapshot(s domain.Snapshot) string {
	var b strings.Builder

	for i, field := range s.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(field.Name)
		b.WriteString(": ")
		b.WriteString(field.Value)
	}

	return b.String()
}

// Result is the materialized outcome of a generation: Text on success, Err otherwise.
type Result struct {
	Provider string
	Model    string
	Text     string
	Err      *Error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Report returns the generated text, or a readable failure description
// that is delivered in place of the report.
func (r Result) Report() string {
	if r.OK() {
		return r.Text
	}

	provider := r.Provider
	if provider == "" {
		provider = "unknown provider"
	}

	reason := strings.TrimSpace(r.Err.Detail)
	if r.Err.Cause != nil {
		reason = strings.TrimPrefix(reason+": "+r.Err.Cause.Error(), ": ")
	}

	return fmt.Sprintf("Error generating response with %s (%s): %s", provider, r.Err.Kind, reason)
}

// Summarizer selects a backend per call and produces the report text.
type Summarizer struct {
	registry *Registry
	log      *slog.Logger
}

func New(registry *Registry, log *slog.Logger) *Summarizer {
	if registry == nil {
		registry = NewRegistry()
	}

	return &Summarizer{
		registry: registry,
		log:      log,
	}
}

// Summarize builds a Request from input and cfg and returns exactly what the
// selected backend produced. There is no fallback to another provider.
func (s *Summarizer) Summarize(ctx context.Context, input Input, cfg BackendConfig) Result {
	start := time.Now()
	provider := normalizeProvider(cfg.Provider)
	result := Result{Provider: provider, Model: cfg.Model}

	backend, err := s.registry.Backend(cfg)
	if err != nil {
		result.Err = asError(provider, err)
		result.Duration = time.Since(start)

		s.log.ErrorContext(ctx, "Failed to select generation backend",
			"error", err,
			"provider", provider,
			"availableProviders", s.registry.Providers())

		return result
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}

	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := Request{
		Provider:     provider,
		Model:        cfg.Model,
		Credential:   cfg.Credential,
		SystemPrompt: cfg.SystemPrompt,
		UserContent:  input.Content(),
	}

	text, err := backend.Generate(genCtx, req)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = asError(provider, err)

		s.log.ErrorContext(ctx, "Failed to generate report",
			"error", err,
			"provider", provider,
			"backend", backend.Name(),
			"kind", KindOf(err),
			"model", cfg.Model,
			"durationSeconds", result.Duration.Seconds())

		return result
	}

	result.Text = text

	s.log.InfoContext(ctx, "Report is generated",
		"provider", provider,
		"backend", backend.Name(),
		"model", cfg.Model,
		"userContentLength", len(req.UserContent),
		"reportLength", len(text),
		"durationSeconds", result.Duration.Seconds())

	return result
}

func asError(provider string, err error) *Error {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}
	return transportError(provider, err)
}

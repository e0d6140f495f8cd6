package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"hoststatus/internal/domain"
	"hoststatus/internal/notifier"
	"hoststatus/internal/observability"
	"hoststatus/internal/summarizer"
)

const (
	resultOK      = "ok"
	statusSkipped = "skipped"
)

// Source gathers the input for one report.
type Source interface {
	Collect(ctx context.Context) (summarizer.Input, error)
}

// History persists finished runs.
type History interface {
	SaveRun(ctx context.Context, run domain.Run) (int64, error)
}

type Config struct {
	Kind           domain.ReportKind
	Backend        summarizer.BackendConfig
	Target         string
	MaxChunkLength int
	Header         string
}

// Pipeline runs one report end to end: collect, generate, segment, deliver
// and record.
type Pipeline struct {
	cfg        Config
	source     Source
	summarizer *summarizer.Summarizer
	dispatcher *notifier.Dispatcher
	history    History
	metrics    *observability.Metrics
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Pipeline)

func WithHistory(history History) Option {
	return func(p *Pipeline) {
		p.history = history
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

func New(
	cfg Config,
	source Source,
	s *summarizer.Summarizer,
	dispatcher *notifier.Dispatcher,
	log *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		source:     source,
		summarizer: s,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type RunResult struct {
	RunID      int64
	Generation summarizer.Result
	Chunks     []notifier.Chunk
	Delivery   notifier.Delivery
	// Skipped is set when every chunk was empty and nothing was sent.
	Skipped bool
}

// OK reports whether the report was generated and every chunk delivered.
func (r RunResult) OK() bool {
	return r.Generation.OK() && r.Delivery.Status == notifier.AllDelivered
}

func (r RunResult) status() string {
	if r.Skipped {
		return statusSkipped
	}
	return string(r.Delivery.Status)
}

// Run executes the pipeline once. It returns an error only when the run could
// not proceed: ctx is done before delivery or the chunk length is invalid.
// Generation and delivery failures are reported through RunResult.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	startedAt := p.now()
	var result RunResult

	input, err := p.source.Collect(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("collect %s input: %w", p.cfg.Kind, ctxErr)
		}

		p.log.ErrorContext(ctx, "Failed to collect report input",
			"error", err,
			"kind", p.cfg.Kind)

		input = summarizer.Input{Text: fmt.Sprintf("Failed to collect %s data: %v", p.cfg.Kind, err)}
	}

	if input.Empty() {
		p.log.WarnContext(ctx, "Collected input is empty",
			"kind", p.cfg.Kind)

		input = summarizer.Input{Text: fmt.Sprintf("No %s data was collected.", p.cfg.Kind)}
	}

	result.Generation = p.summarizer.Summarize(ctx, input, p.cfg.Backend)
	p.observeGeneration(result.Generation)

	if err = ctx.Err(); err != nil {
		return result, fmt.Errorf("generate %s report: %w", p.cfg.Kind, err)
	}

	content := buildContent(p.cfg.Header, result.Generation.Report())

	result.Chunks, err = notifier.Segment(content, p.cfg.MaxChunkLength)
	if err != nil {
		return result, fmt.Errorf("segment report: %w", err)
	}

	if notifier.AllEmpty(result.Chunks) {
		result.Skipped = true
		result.Delivery = notifier.Delivery{Status: notifier.AllDelivered}

		p.log.WarnContext(ctx, "Report is empty so delivery is skipped",
			"kind", p.cfg.Kind,
			"provider", result.Generation.Provider)
	} else {
		result.Delivery = p.dispatcher.DeliverAll(ctx, p.cfg.Target, result.Chunks)
		for _, outcome := range result.Delivery.Outcomes {
			p.metrics.ObserveDelivery(string(outcome.Status), outcome.Duration)
		}
	}

	finishedAt := p.now()
	p.metrics.MarkRun(finishedAt)
	result.RunID = p.record(ctx, result, utf8.RuneCountInString(content), startedAt, finishedAt)

	p.log.InfoContext(ctx, "Run is finished",
		"runID", result.RunID,
		"kind", p.cfg.Kind,
		"provider", result.Generation.Provider,
		"generated", result.Generation.OK(),
		"chunkCount", len(result.Chunks),
		"failedChunkCount", result.Delivery.Failed(),
		"status", result.status(),
		"durationSeconds", finishedAt.Sub(startedAt).Seconds())

	return result, nil
}

func (p *Pipeline) observeGeneration(gen summarizer.Result) {
	label := resultOK
	if !gen.OK() {
		label = string(gen.Err.Kind)
	}
	p.metrics.ObserveGeneration(gen.Provider, label, gen.Duration)
}

func (p *Pipeline) record(
	ctx context.Context,
	result RunResult,
	reportLength int,
	startedAt time.Time,
	finishedAt time.Time,
) int64 {
	if p.history == nil {
		return 0
	}

	run := domain.Run{
		Kind:         p.cfg.Kind,
		Provider:     result.Generation.Provider,
		Model:        result.Generation.Model,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		ReportLength: reportLength,
		ChunkCount:   len(result.Chunks),
		Status:       result.status(),
		Deliveries:   make([]domain.Delivery, 0, len(result.Delivery.Outcomes)),
	}
	if !result.Generation.OK() {
		run.GenerationError = string(result.Generation.Err.Kind)
	}

	for _, outcome := range result.Delivery.Outcomes {
		run.Deliveries = append(run.Deliveries, domain.Delivery{
			ChunkIndex:  outcome.ChunkIndex,
			Status:      string(outcome.Status),
			HTTPStatus:  outcome.HTTPStatus,
			ErrorKind:   string(outcome.ErrorKind),
			ErrorDetail: outcome.ErrorDetail,
		})
	}

	// History is written even when ctx was canceled mid-delivery.
	runID, err := p.history.SaveRun(context.WithoutCancel(ctx), run)
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to save run",
			"error", err,
			"kind", p.cfg.Kind,
			"status", run.Status)

		return 0
	}

	return runID
}

func buildContent(header, report string) string {
	if strings.TrimSpace(header) == "" {
		return report
	}
	return header + "\n" + report
}

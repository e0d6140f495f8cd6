package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hoststatus/internal/collector"
	"hoststatus/internal/config"
	"hoststatus/internal/database"
	"hoststatus/internal/domain"
	"hoststatus/internal/notifier"
	"hoststatus/internal/observability"
	"hoststatus/internal/pipeline"
	"hoststatus/internal/ratelimiter"
	"hoststatus/internal/summarizer"
)

const (
	historyCommand = "history"
	historyLimit   = 20
)

func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).ErrorContext(ctx, "Failed to load config",
			"error", err)

		return 1
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	log.InfoContext(ctx, "Config is loaded",
		"kind", cfg.Kind,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"configPath", cfg.ConfigPath,
		"maxChunkLength", cfg.MaxChunkLength)

	if len(os.Args) > 1 && os.Args[1] == historyCommand {
		return listHistory(ctx, cfg, log)
	}

	metrics := observability.NewMetrics()
	opts := []pipeline.Option{pipeline.WithMetrics(metrics)}

	if cfg.DBPath != "" {
		db, dbErr := database.New(ctx, cfg.DBPath, log)
		if dbErr != nil {
			log.ErrorContext(ctx, "Failed to initialize db",
				"error", dbErr,
				"dbPath", cfg.DBPath)

			return 1
		}
		defer func() {
			if err = db.Close(); err != nil {
				log.ErrorContext(ctx, "Failed to close db",
					"error", err,
					"dbPath", cfg.DBPath)
			}
		}()
		log.InfoContext(ctx, "DB is initialized",
			"dbPath", cfg.DBPath)

		opts = append(opts, pipeline.WithHistory(db))
	}

	dispatcher := notifier.NewDispatcher(log,
		notifier.WithTimeout(cfg.DeliveryTimeout),
		notifier.WithRateLimiter(ratelimiter.New(cfg.DeliveryInterval, log)))

	p := pipeline.New(
		pipeline.Config{
			Kind:           cfg.Kind,
			Backend:        cfg.Backend(),
			Target:         cfg.WebhookURL,
			MaxChunkLength: cfg.MaxChunkLength,
			Header:         cfg.ReportHeader,
		},
		newSource(cfg, log),
		summarizer.New(summarizer.NewRegistry(), log),
		dispatcher,
		log,
		opts...,
	)

	result, err := p.Run(ctx)

	if cfg.MetricsTextfile != "" {
		if writeErr := metrics.WriteTextfile(cfg.MetricsTextfile); writeErr != nil {
			log.ErrorContext(ctx, "Failed to write metrics textfile",
				"error", writeErr,
				"path", cfg.MetricsTextfile)
		}
	}

	if err != nil {
		log.ErrorContext(ctx, "Failed to run report",
			"error", err,
			"kind", cfg.Kind,
			"uptimeSeconds", time.Since(start).Seconds())

		return 1
	}

	log.InfoContext(ctx, "Exiting...",
		"ok", result.OK(),
		"status", result.Delivery.Status,
		"uptimeSeconds", time.Since(start).Seconds())

	if !result.OK() {
		return 1
	}

	return 0
}

func newSource(cfg config.Config, log *slog.Logger) pipeline.Source {
	if cfg.Kind == domain.ReportKindUpdates {
		return collector.NewUpdateCollector(log,
			collector.WithUpdateCheckTimeout(cfg.UpdateCheckTimeout))
	}

	return collector.NewSystemCollector(log)
}

// listHistory logs the latest recorded runs, newest first.
func listHistory(ctx context.Context, cfg config.Config, log *slog.Logger) int {
	if cfg.DBPath == "" {
		log.ErrorContext(ctx, "DB_PATH is required to list history",
			"envVar", "DB_PATH")

		return 1
	}

	db, err := database.New(ctx, cfg.DBPath, log)
	if err != nil {
		log.ErrorContext(ctx, "Failed to initialize db",
			"error", err,
			"dbPath", cfg.DBPath)

		return 1
	}
	defer func() {
		if err = db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close db",
				"error", err,
				"dbPath", cfg.DBPath)
		}
	}()

	runs, err := db.ListRuns(ctx, historyLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list runs",
			"error", err,
			"dbPath", cfg.DBPath)

		return 1
	}

	for _, r := range runs {
		failed := 0
		for _, delivery := range r.Deliveries {
			if delivery.Status != string(notifier.StatusDelivered) {
				failed++
			}
		}

		log.InfoContext(ctx, "Run is listed",
			"runID", r.ID,
			"kind", r.Kind,
			"provider", r.Provider,
			"model", r.Model,
			"startedAt", r.StartedAt,
			"durationSeconds", r.FinishedAt.Sub(r.StartedAt).Seconds(),
			"generationError", r.GenerationError,
			"chunkCount", r.ChunkCount,
			"failedChunkCount", failed,
			"status", r.Status)
	}

	log.InfoContext(ctx, "History is listed",
		"runCount", len(runs),
		"limit", historyLimit)

	return 0
}

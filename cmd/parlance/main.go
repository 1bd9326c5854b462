package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/parlance-ai/parlance/internal/analysis"
	"github.com/parlance-ai/parlance/internal/anthropic"
	"github.com/parlance-ai/parlance/internal/api"
	"github.com/parlance-ai/parlance/internal/config"
	"github.com/parlance-ai/parlance/internal/detect"
	"github.com/parlance-ai/parlance/internal/events"
	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/longitudinal"
	"github.com/parlance-ai/parlance/internal/similarity"
	"github.com/parlance-ai/parlance/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("parlance starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Embedding index shares the store's pool.
	embeddingIndex := index.NewPG(db.Pool())
	embedder := index.SharedEmbedder(cfg.EmbedderURL)

	// Rule detector lexicon
	lexicon := detect.DefaultLexicon()
	if cfg.LexiconPath != "" {
		lexicon, err = detect.LoadLexicon(cfg.LexiconPath)
		if err != nil {
			slog.Error("failed to load lexicon", "path", cfg.LexiconPath, "error", err)
			os.Exit(1)
		}
		slog.Info("lexicon loaded", "path", cfg.LexiconPath)
	}
	rules := detect.NewRules(lexicon)

	// Classifier sidecar
	classifier := detect.NewClassifierDetector(
		detect.SharedClassifier(cfg.ClassifierURL),
		detect.DefaultThresholds(),
	)

	// Narrative detector (optional — analysis runs without it, the
	// rule and classifier detectors stay authoritative)
	var narrative analysis.NarrativeDetector
	if cfg.AnthropicAPIKey != "" {
		llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		narrative = detect.NewNarrative(llm, slog.Default())
		slog.Info("narrative detector ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — running without narrative detector")
	}

	// NATS
	eventsClient, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventsClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Analysis pipeline
	pipeline := analysis.New(db, rules, classifier, narrative, embeddingIndex, embedder, eventsClient, slog.Default())
	pipeline.SetTargetSpeaker(cfg.TargetSpeaker)

	if err := eventsClient.Subscribe(events.SubjectAnswerTranscribed, pipeline.HandleAnswerTranscribed); err != nil {
		slog.Error("failed to subscribe to transcribed events", "error", err)
		os.Exit(1)
	}

	// Read-side services
	analyzer := longitudinal.New(embeddingIndex, slog.Default())
	hints := similarity.New(embeddingIndex, slog.Default())

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, db, analyzer, hints, pipeline, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("parlance ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("parlance stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

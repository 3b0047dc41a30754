package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"

	"papyrus/internal/adapter/gemini"
	wstore "papyrus/internal/adapter/weaviate"
	"papyrus/internal/app"
	"papyrus/internal/config"
	"papyrus/internal/logger"
)

func main() {
	// Structured JSON logs with correlation IDs pulled from context.
	baseHandler := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(baseHandler)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, gemini.Config{
		Model:      cfg.EmbeddingModel,
		BatchSize:  cfg.EmbeddingBatchSize,
		Dimension:  cfg.EmbeddingDimension,
		BatchDelay: time.Duration(cfg.EmbeddingBatchDelayMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	chunkStore := wstore.NewStore(deps.WeaviateClient)

	application, err := app.New(cfg, deps.DB, chunkStore, deps.NSQProducer, embedder)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	// NSQ consumer for document ingestion events.
	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, "ingest-worker", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ consumer", "error", err)
		os.Exit(1)
	}
	consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return application.IngestConsumer.HandleMessage(m)
	}))
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect to NSQLookupd", "error", err)
		os.Exit(1)
	}
	defer consumer.Stop()
	slog.Info("ingest consumer connected", "topic", config.TopicIngestDocument)

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// Package app wires the features together and runs the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"papyrus/features/document"
	"papyrus/features/search"
	"papyrus/features/stats"
	"papyrus/internal/config"
	"papyrus/internal/embedding"
	"papyrus/internal/extract"
	"papyrus/internal/middleware"
	"papyrus/internal/pipeline"
	"papyrus/internal/retrieval"
	"papyrus/internal/settings"
	"papyrus/internal/text"
	"papyrus/internal/worker"
)

// ChunkStore is everything the features need from the vector store.
type ChunkStore interface {
	document.ChunkStore
	retrieval.SearchStore
	InsertChunks(ctx context.Context, chunks []pipeline.ChunkRecord) error
	CountChunks(ctx context.Context, ownerID string) (int, error)
}

type App struct {
	Handler        http.Handler
	Pipeline       *pipeline.Pipeline
	IngestConsumer *worker.IngestConsumer

	port int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	chunkStore ChunkStore,
	pub document.EventPublisher,
	embedder embedding.Generator,
) (*App, error) {

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	settingsHandler := settings.NewHandler(settingsService)

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, pub, chunkStore)
	documentHandler := document.NewHandler(documentService, cfg.UploadDir, int(cfg.MaxUploadSizeMB))

	// Pipeline. Extractor and chunker read the settings row per document
	// so tuning takes effect without a restart.
	ingestPipeline := pipeline.New(
		documentRepo,
		chunkStore,
		&dynamicExtractor{settings: settingsService, fallbackRatio: cfg.PDFCJKRatio},
		&dynamicChunker{settings: settingsService, fallbackSize: cfg.MaxChunkSize, fallbackOverlap: cfg.ChunkOverlap, flushRatio: cfg.FlushRatio},
		embedder,
	)
	ingestConsumer := worker.NewIngestConsumer(ingestPipeline)

	// Feature: Search
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	engine := retrieval.NewEngine(embedder, chunkStore, documentRepo, queryLogger)
	searchHandler := search.NewHandler(engine, settingsService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, chunkStore)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.OwnerHeader)

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))
	mux.Handle("POST /documents/{id}/reprocess", middleware.CorrelationID(enableCORS(documentHandler.Reprocess)))

	mux.Handle("POST /search", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:        mux,
		Pipeline:       ingestPipeline,
		IngestConsumer: ingestConsumer,
		port:           cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// dynamicExtractor resolves the CJK page-filter ratio from settings on
// each call, falling back to the environment default if the row is
// unreadable.
type dynamicExtractor struct {
	settings      *settings.Service
	fallbackRatio float64
}

func (d *dynamicExtractor) Extract(path, fileType string) (string, error) {
	ratio := d.fallbackRatio
	if set, err := d.settings.Get(context.Background()); err == nil {
		ratio = set.PDFCJKRatio
	}
	return extract.New(ratio).Extract(path, fileType)
}

// dynamicChunker resolves chunk size and overlap from settings on each
// call.
type dynamicChunker struct {
	settings        *settings.Service
	fallbackSize    int
	fallbackOverlap int
	flushRatio      float64
}

func (d *dynamicChunker) Chunk(content string) []string {
	size, overlap := d.fallbackSize, d.fallbackOverlap
	if set, err := d.settings.Get(context.Background()); err == nil {
		size, overlap = set.MaxChunkSize, set.ChunkOverlap
	}
	chunker := text.NewChunker(size, overlap)
	if d.flushRatio > 0 {
		chunker.FlushRatio = d.flushRatio
	}
	return chunker.Chunk(content)
}

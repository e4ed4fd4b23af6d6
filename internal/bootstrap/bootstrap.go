// Package bootstrap builds the application graph from the configuration.
// Both the HTTP server and the CLI use it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"docrag-go/internal/chunker"
	"docrag-go/internal/config"
	"docrag-go/internal/embedder"
	"docrag-go/internal/extractor"
	"docrag-go/internal/pipeline"
	"docrag-go/internal/repository"
	"docrag-go/internal/service"
	"docrag-go/internal/textclean"
	"docrag-go/internal/vectorstore"
	"docrag-go/pkg/database"
	"docrag-go/pkg/embedding"
	"docrag-go/pkg/es"
	"docrag-go/pkg/kafka"
	"docrag-go/pkg/log"
	"docrag-go/pkg/storage"
	"docrag-go/pkg/tika"
)

// App holds the wired components.
type App struct {
	Config    config.Config
	Store     vectorstore.Store
	Processor *pipeline.Processor
	Uploads   service.UploadService
	Documents service.DocumentService
	Search    service.SearchService
	// Consumer is nil unless Kafka is enabled.
	Consumer *kafka.Consumer

	closers []func() error
}

// New connects every configured backend and wires the services.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}
	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store
	adapter := vectorstore.NewAdapter(store,
		vectorstore.WithInsertRetry(cfg.VectorStore.InsertAttempts, cfg.VectorStore.InsertBackoff),
		vectorstore.WithFallbackScanLimit(cfg.VectorStore.FallbackScanLimit),
	)

	provider, err := embedding.NewClient(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	validator := textclean.Validator{
		Storage:   cfg.Pipeline.Validation.Storage,
		Embedding: cfg.Pipeline.Validation.Embedding,
	}
	gen := embedder.NewGenerator(provider,
		embedder.WithBatchSize(cfg.Embedding.BatchSize),
		embedder.WithBatchDelay(cfg.Embedding.BatchDelay),
		embedder.WithValidator(validator),
	)
	a.Processor = pipeline.NewProcessor(
		NewExtractor(cfg, validator),
		validator,
		chunker.New(
			chunker.WithChunkSize(cfg.Pipeline.ChunkSize),
			chunker.WithOverlap(cfg.Pipeline.ChunkOverlap),
			chunker.WithMinChunkLength(cfg.Pipeline.MinChunkLength),
		),
		gen,
		adapter,
	)

	var blobs storage.BlobStore
	if cfg.MinIO.Enabled {
		minioStore, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			return err
		}
		blobs = minioStore
	}

	var publisher service.TaskPublisher
	if cfg.Kafka.Enabled {
		if blobs == nil {
			return errors.New("kafka ingestion requires minio to be enabled")
		}
		producer := kafka.NewProducer(cfg.Kafka)
		a.closers = append(a.closers, producer.Close)
		publisher = producer
	}

	a.Uploads = service.NewUploadService(a.Processor, blobs, publisher)
	a.Documents = service.NewDocumentService(store, blobs)
	a.Search = service.NewSearchService(gen, adapter, cfg.Search.Threshold, cfg.Search.Count)

	if cfg.Kafka.Enabled {
		rdb, err := database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rdb.Close)
		a.Consumer = kafka.NewConsumer(cfg.Kafka, a.Uploads, repository.NewAttemptRepository(rdb, 0))
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (vectorstore.Store, error) {
	cfg := a.Config
	switch cfg.VectorStore.Backend {
	case "postgres", "mysql":
		db, err := database.Open(cfg.VectorStore.Backend, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		repo := repository.NewChunkRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Infof("[Bootstrap] using %s chunk store", cfg.VectorStore.Backend)
		return repo, nil
	case "elasticsearch":
		client, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch client: %w", err)
		}
		store := es.NewStore(client, cfg.Elasticsearch.IndexName)
		if err := store.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		log.Infof("[Bootstrap] using elasticsearch index %s", cfg.Elasticsearch.IndexName)
		return store, nil
	case "memory":
		log.Warnf("[Bootstrap] using in-memory chunk store; data is lost on exit")
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// NewExtractor builds the text extractor from the configuration.
func NewExtractor(cfg config.Config, validator textclean.Validator) *extractor.Extractor {
	opts := []extractor.Option{
		extractor.WithRunner(extractor.ExecRunner{Timeout: cfg.PDFToText.Timeout}),
		extractor.WithPDFToTextPath(cfg.PDFToText.Path),
		extractor.WithMaxPages(cfg.Pipeline.MaxPDFPages),
		extractor.WithMinExtractedLength(cfg.Pipeline.MinExtractedLength),
		extractor.WithValidator(validator),
	}
	// A nil *tika.Client must not reach WithParser as a non-nil interface.
	if client := tika.NewClient(cfg.Tika); client != nil {
		opts = append(opts, extractor.WithParser(client))
	}
	return extractor.New(opts...)
}

// Close releases every connection opened by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("[Bootstrap] close: %v", err)
		}
	}
	a.closers = nil
}

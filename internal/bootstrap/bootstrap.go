package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Whisker2257/casa/internal/config"
	"github.com/Whisker2257/casa/internal/core/domain"
	"github.com/Whisker2257/casa/internal/core/ports"
	"github.com/Whisker2257/casa/internal/core/usecase"
	"github.com/Whisker2257/casa/internal/infrastructure/extractor/localpdf"
	"github.com/Whisker2257/casa/internal/infrastructure/extractor/mathpix"
	"github.com/Whisker2257/casa/internal/infrastructure/llm/openai"
	"github.com/Whisker2257/casa/internal/infrastructure/queue/nats"
	"github.com/Whisker2257/casa/internal/infrastructure/repository/postgres"
	"github.com/Whisker2257/casa/internal/infrastructure/resilience"
	"github.com/Whisker2257/casa/internal/infrastructure/storage/localfs"
	"github.com/Whisker2257/casa/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue ports.JobQueue
	Files ports.FileRepository
	Store ports.ObjectStore

	UploadUC    ports.Uploader
	ChunkUC     ports.Chunker
	IndexUC     ports.DocumentIndexer
	QAUC        ports.QuestionAnswerer
	SummarizeUC ports.Summarizer
	CompareUC   ports.Comparator
	ProcessUC   ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	files := postgres.NewFileRepository(db)
	if err := files.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	store, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	// One executor per process: nats, qdrant and mathpix share the retry
	// policy but keep per-operation breakers.
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	// Mathpix does real OCR; without credentials fall back to local pdf
	// text extraction so development works offline.
	var converter ports.MarkdownConverter
	if cfg.MathpixAppID != "" && cfg.MathpixAppKey != "" {
		converter = mathpix.NewWithExecutor(
			cfg.MathpixBaseURL,
			cfg.MathpixAppID,
			cfg.MathpixAppKey,
			time.Duration(cfg.MathpixPollIntervalMS)*time.Millisecond,
			executor,
		)
	} else {
		converter = localpdf.New()
	}

	llmClient := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIGenModel, cfg.OpenAIEmbedModel, cfg.OpenAIRPS)
	embedder := openai.NewEmbedder(llmClient)
	generator := openai.NewGenerator(llmClient)

	vectorDB := qdrant.NewWithExecutor(cfg.QdrantURL, cfg.QdrantCollection, executor)

	extractUC := usecase.NewExtractUseCase(store, converter)
	chunkUC := usecase.NewChunkUseCase(extractUC)
	indexUC := usecase.NewIndexUseCase(
		store, extractUC, embedder, vectorDB,
		domain.ChunkParams{ChunkSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		domain.SectionParams{MaxChars: cfg.SectionMaxChars, OverlapChars: cfg.SectionOverlapChars},
	)
	uploadUC := usecase.NewUploadUseCase(store, files, indexUC, queue)
	qaUC := usecase.NewQAUseCase(store, extractUC, embedder, vectorDB, generator, indexUC, cfg.QATopK)
	summarizeUC := usecase.NewSummarizeUseCase(store, extractUC, generator)
	compareUC := usecase.NewCompareUseCase(extractUC, summarizeUC, generator)
	processUC := usecase.NewProcessUseCase(files, indexUC, summarizeUC)

	return &App{
		Config: cfg,
		Queue:  queue,
		Files:  files,
		Store:  store,

		UploadUC:    uploadUC,
		ChunkUC:     chunkUC,
		IndexUC:     indexUC,
		QAUC:        qaUC,
		SummarizeUC: summarizeUC,
		CompareUC:   compareUC,
		ProcessUC:   processUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/api/handlers"
	"github.com/markdave123-py/documind/internal/config"
	"github.com/markdave123-py/documind/internal/core"
	db "github.com/markdave123-py/documind/internal/core/database"
	"github.com/markdave123-py/documind/internal/core/ingestion_engine"
	"github.com/markdave123-py/documind/internal/core/llm"
	objectclient "github.com/markdave123-py/documind/internal/core/object-client"
	"github.com/markdave123-py/documind/internal/core/retrieval"
	"github.com/markdave123-py/documind/internal/services"
)

const shutdownTimeout = 30 * time.Second

// App owns every long-lived dependency. Each is built once in NewApp and
// released in reverse order by Close.
type App struct {
	cfg          *config.Config
	log          *zap.Logger
	DBClient     *db.DatabaseClient
	ObjectClient core.ObjectClient
	genai        *genai.Client
	bus          *gochannel.GoChannel
	Ingestor     *ingestion_engine.DocumentIngestor
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, log: log}

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.DBClient = dbClient
	log.Info("database initialized and migrated")

	objClient, err := objectclient.New(initCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	a.ObjectClient = objClient
	log.Info("object storage ready", zap.String("driver", cfg.StorageDriver))

	// Without an API key the service still runs; chat reports itself
	// unavailable and suggestions fall back to fixed questions.
	var (
		provider core.LLMProvider
		embedder core.EmbeddingProvider
	)
	if client, err := llm.NewGeminiClient(initCtx, cfg.AIAPIKey); err != nil {
		log.Warn("AI provider disabled", zap.Error(err))
	} else {
		a.genai = client
		provider = llm.NewGeminiLLM(client)
		if cfg.EmbedEnabled {
			embedder = llm.NewGeminiEmbedder(client, cfg.EmbedModel)
		}
	}

	chain := llm.NewModelChain(cfg.ChatModels, llm.DefaultFallbackDelay, log)

	var summarizer core.Summarizer
	if provider != nil {
		summarizer = services.NewSummaryService(provider, chain, log)
	}

	var ocr core.OCREngine
	switch {
	case cfg.OCREnabled && ingestion_engine.OCRAvailable:
		ocr = ingestion_engine.NewTesseractOCR(cfg.OCRLanguage)
	case cfg.OCREnabled:
		log.Warn("OCR requested but this build has no tesseract support; scanned PDFs will fail extraction")
	}

	ingestCfg := ingestion_engine.IngestConfigFrom(cfg)
	a.bus = ingestion_engine.NewEventBus(ingestCfg.QueueSize, log)
	pipeline := ingestion_engine.NewPipeline(
		dbClient, objClient, ingestion_engine.NewExtractor(ocr, log),
		summarizer, embedder, ingestCfg, log,
	)
	a.Ingestor = ingestion_engine.NewDocumentIngestor(a.bus, dbClient, pipeline, ingestCfg, log)

	retriever := retrieval.NewRetriever(dbClient, embedder, log)
	chat := services.NewChatService(dbClient, retriever, provider, chain, cfg.ContextBudget, log)
	suggest := services.NewSuggestService(dbClient, provider, cfg.SuggestModel, log)
	docs := services.NewDocumentService(
		dbClient, objClient, ingestion_engine.NewUploadPublisher(a.bus),
		cfg.MaxUploadSize, cfg.StorageQuota, log,
	)
	projects := services.NewProjectService(dbClient)

	a.Server = NewServer(cfg, Handlers{
		Chat:      handlers.NewChatHandler(chat, suggest, log),
		Documents: handlers.NewDocumentHandler(docs, suggest, cfg.MaxUploadSize, log),
		Projects:  handlers.NewProjectHandler(projects, log),
	}, log)

	return a, nil
}

// Run starts the ingestion workers and the HTTP server and blocks until ctx
// is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Ingestor.Start(runCtx); err != nil {
		return fmt.Errorf("start ingestor: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.Server.Start() }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if serr := a.Server.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn("server shutdown", zap.Error(serr))
	}

	cancel()
	a.Ingestor.Wait()
	a.log.Info("ingestion workers stopped")
	return err
}

// Close releases resources in reverse order of construction.
func (a *App) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("close event bus", zap.Error(err))
		}
	}
	if a.genai != nil {
		if err := a.genai.Close(); err != nil {
			a.log.Warn("close genai client", zap.Error(err))
		}
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.log.Warn("close database", zap.Error(err))
		}
	}
}

package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/documind/internal/config"
)

// IngestConfig tunes the ingestion runtime.
//
// Workers:       goroutines running pipelines concurrently.
// StepRetries:   extra attempts a failing step gets before the run fails.
// RetryDelay:    pause between attempts of a step.
// BatchSize:     chunk rows written per insert transaction.
// EmbedBatch:    texts per embedding request.
// EmbedDim:      expected vector length; 0 accepts any.
// SummaryChunks: leading chunks handed to the summarizer.
// QueueSize:     buffered events waiting for a free worker.
// Chunk:         chunker settings.
type IngestConfig struct {
	Workers       int
	StepRetries   int
	RetryDelay    time.Duration
	BatchSize     int
	EmbedBatch    int
	EmbedDim      int
	SummaryChunks int
	QueueSize     int
	Chunk         ChunkOptions
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Workers:       4,
		StepRetries:   2,
		RetryDelay:    time.Second,
		BatchSize:     500,
		EmbedBatch:    100,
		SummaryChunks: 10,
		QueueSize:     64,
		Chunk:         DefaultChunkOptions(),
	}
}

// IngestConfigFrom overlays the process configuration on the defaults.
func IngestConfigFrom(cfg *config.Config) IngestConfig {
	ic := DefaultIngestConfig()
	if cfg.IngestWorkers > 0 {
		ic.Workers = cfg.IngestWorkers
	}
	if cfg.IngestStepRetries >= 0 {
		ic.StepRetries = cfg.IngestStepRetries
	}
	if cfg.IngestBatchSize > 0 {
		ic.BatchSize = cfg.IngestBatchSize
	}
	if cfg.EmbedDim > 0 {
		ic.EmbedDim = cfg.EmbedDim
	}
	return ic
}

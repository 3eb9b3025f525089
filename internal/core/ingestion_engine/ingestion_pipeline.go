package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/models"
)

// Pipeline step names, recorded in the run checkpoint.
const (
	StepMarkProcessing = "mark-processing"
	StepDownload       = "download"
	StepExtract        = "extract"
	StepPersist        = "persist"
	StepSummarize      = "summarize"
	StepEmbed          = "embed"
	StepMarkCompleted  = "mark-completed"
)

const unknownFailure = "Unknown processing error"

// PipelineStore is the persistence the pipeline writes to. core.DbClient
// satisfies it.
type PipelineStore interface {
	UpdateDocumentStatus(ctx context.Context, id, userID, status string, message *string) error
	SetPageCount(ctx context.Context, id, userID string, pageCount int) error
	SetSummary(ctx context.Context, id, userID, summary string) error
	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk) error
	SetChunkEmbeddings(ctx context.Context, documentID, userID string, vectors map[int][]float32) error
	core.RunStore
}

// Pipeline turns one uploaded document into stored chunks. It is a state
// machine over a fixed list of steps; every finished step is checkpointed in
// the run so a re-run resumes after the last completed step.
type Pipeline struct {
	store      PipelineStore
	obj        core.ObjectClient
	extractor  core.DocumentExtractor
	summarizer core.Summarizer
	embedder   core.EmbeddingProvider
	cfg        IngestConfig
	log        *zap.Logger
}

// NewPipeline builds a pipeline. summarizer and embedder may be nil, which
// skips the matching step.
func NewPipeline(
	store PipelineStore,
	obj core.ObjectClient,
	extractor core.DocumentExtractor,
	summarizer core.Summarizer,
	embedder core.EmbeddingProvider,
	cfg IngestConfig,
	log *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		obj:        obj,
		extractor:  extractor,
		summarizer: summarizer,
		embedder:   embedder,
		cfg:        cfg,
		log:        log.Named("pipeline"),
	}
}

// runState is what one pipeline execution carries between steps.
type runState struct {
	run  *models.IngestionRun
	data []byte
	log  *zap.Logger
}

type step struct {
	name string
	run  func(ctx context.Context, s *runState) error
	// bestEffort steps log their failure and let the run continue.
	bestEffort bool
	// transient steps produce in-memory output only and are never checkpointed.
	transient bool
	skip      func(s *runState) bool
}

func (p *Pipeline) steps() []step {
	return []step{
		{name: StepMarkProcessing, run: p.markProcessing},
		{name: StepDownload, run: p.download, transient: true, skip: func(s *runState) bool {
			return s.run.HasCompleted(StepExtract)
		}},
		{name: StepExtract, run: p.extract},
		{name: StepPersist, run: p.persist},
		{name: StepSummarize, run: p.summarize, bestEffort: true, skip: func(*runState) bool {
			return p.summarizer == nil
		}},
		{name: StepEmbed, run: p.embed, bestEffort: true, skip: func(*runState) bool {
			return p.embedder == nil
		}},
		{name: StepMarkCompleted, run: p.markCompleted},
	}
}

// Run executes the pipeline for an upload event. Runs that already finished
// are left alone, so replaying an event is harmless. A failing step marks the
// document failed with a readable status message; Run returns that error.
// Cancellation leaves the run unfinished for recovery.
func (p *Pipeline) Run(ctx context.Context, evt models.UploadEvent) error {
	log := p.log.With(zap.String("document_id", evt.DocID), zap.String("file_name", evt.FileName))

	run, err := p.store.GetIngestionRun(ctx, evt.DocID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if run == nil {
		run = &models.IngestionRun{DocumentID: evt.DocID, UserID: evt.UserID, Event: evt}
	}
	if run.State == models.RunCompleted || run.State == models.RunFailed {
		log.Info("run already finished", zap.String("state", run.State))
		return nil
	}

	run.State = models.RunRunning
	run.Attempts++
	p.checkpoint(ctx, run, log)

	s := &runState{run: run, log: log}
	start := time.Now()
	for _, st := range p.steps() {
		if run.HasCompleted(st.name) || (st.skip != nil && st.skip(s)) {
			continue
		}

		err := p.runStep(ctx, st, s)
		if err == nil {
			if !st.transient {
				run.MarkCompleted(st.name)
				p.checkpoint(ctx, run, log)
			}
			continue
		}

		if ctx.Err() != nil {
			log.Warn("pipeline interrupted", zap.String("step", st.name), zap.Error(err))
			return ctx.Err()
		}
		if st.bestEffort {
			log.Warn("best-effort step failed", zap.String("step", st.name), zap.Error(err))
			run.MarkCompleted(st.name)
			p.checkpoint(ctx, run, log)
			continue
		}

		p.fail(ctx, run, st.name, err, log)
		return err
	}

	run.State = models.RunCompleted
	run.LastError = nil
	p.checkpoint(ctx, run, log)
	log.Info("document processed",
		zap.Int("chunks", chunkCount(run)), zap.Duration("took", time.Since(start)))
	return nil
}

// runStep retries a step with a constant delay. Content and ownership errors
// are permanent because a retry cannot change their outcome.
func (p *Pipeline) runStep(ctx context.Context, st step, s *runState) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := st.run(ctx, s)
		if err == nil {
			return struct{}{}, nil
		}
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(p.cfg.StepRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Warn("step failed, retrying",
				zap.String("step", st.name), zap.Int("attempt", attempt), zap.Duration("next", next), zap.Error(err))
		}),
	)
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, core.ErrExtractionEmpty) ||
		errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrNotFound)
}

func (p *Pipeline) fail(ctx context.Context, run *models.IngestionRun, stepName string, err error, log *zap.Logger) {
	msg := failureMessage(err)
	log.Error("pipeline failed", zap.String("step", stepName), zap.Error(err))

	// the failure must be recorded even if the caller's context is winding down
	wctx := context.WithoutCancel(ctx)
	if uerr := p.store.UpdateDocumentStatus(wctx, run.DocumentID, run.UserID, models.StatusFailed, &msg); uerr != nil {
		log.Error("record failure status", zap.Error(uerr))
	}

	run.State = models.RunFailed
	run.LastError = &msg
	p.checkpoint(wctx, run, log)
}

// failureMessage is the text stored as the document's status_message.
func failureMessage(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	if err == nil || err.Error() == "" {
		return unknownFailure
	}
	return err.Error()
}

func (p *Pipeline) checkpoint(ctx context.Context, run *models.IngestionRun, log *zap.Logger) {
	if err := p.store.SaveIngestionRun(ctx, run); err != nil {
		log.Warn("save checkpoint", zap.Error(err))
	}
}

func (p *Pipeline) markProcessing(ctx context.Context, s *runState) error {
	err := p.store.UpdateDocumentStatus(ctx, s.run.DocumentID, s.run.UserID, models.StatusProcessing, nil)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.NewError(core.ErrPersist, "Failed to update document status: "+err.Error(), err)
	}
	return err
}

func (p *Pipeline) download(ctx context.Context, s *runState) error {
	data, err := p.obj.GetFile(ctx, s.run.Event.FilePath)
	if err != nil {
		kind := core.ErrDownload
		if errors.Is(err, core.ErrNotFound) {
			kind = core.ErrNotFound
		}
		return core.NewError(kind, "Failed to download file: "+err.Error(), err)
	}
	if len(data) == 0 {
		return core.NewError(core.ErrDownload, "Failed to download file: No data", nil)
	}
	s.data = data
	return nil
}

func (p *Pipeline) extract(ctx context.Context, s *runState) error {
	evt := s.run.Event
	doc, err := p.extractor.Extract(ctx, s.data, evt.FileType, evt.FileName)
	if err != nil {
		return err
	}

	chunks := ChunkDocument(doc, p.cfg.Chunk)
	if len(chunks) == 0 {
		return extractionEmpty(evt.FileName, evt.FileType, nil)
	}

	s.run.Payload = &models.IngestPayload{PageCount: doc.PageCount, Chunks: chunks}
	s.data = nil
	s.log.Info("document extracted",
		zap.Int("page_count", doc.PageCount), zap.Int("chunks", len(chunks)), zap.Int("chars", len(doc.Text)))
	return nil
}

// persist writes the page count and then the chunks in index order, one
// transaction per batch. Batches are upserts so a retry after a partial
// write does not duplicate rows.
func (p *Pipeline) persist(ctx context.Context, s *runState) error {
	run := s.run
	if run.Payload == nil {
		return fmt.Errorf("no extraction output in checkpoint")
	}

	if err := p.store.SetPageCount(ctx, run.DocumentID, run.UserID, run.Payload.PageCount); err != nil {
		return core.NewError(core.ErrPersist, "Failed to store page count: "+err.Error(), err)
	}

	records := run.Payload.Chunks
	batch := max(p.cfg.BatchSize, 1)
	for lo := 0; lo < len(records); lo += batch {
		hi := min(lo+batch, len(records))
		rows := make([]models.DocumentChunk, 0, hi-lo)
		for i := lo; i < hi; i++ {
			rows = append(rows, models.DocumentChunk{
				DocumentID: run.DocumentID,
				UserID:     run.UserID,
				ChunkIndex: i,
				Content:    records[i].Content,
				PageNumber: records[i].PageNumber,
			})
		}
		if err := p.store.UpsertChunks(ctx, rows); err != nil {
			return core.NewError(core.ErrPersist,
				fmt.Sprintf("Failed to insert chunks batch %d: %v", lo/batch, err), err)
		}
	}
	return nil
}

func (p *Pipeline) summarize(ctx context.Context, s *runState) error {
	run := s.run
	if run.Payload == nil || len(run.Payload.Chunks) == 0 {
		return nil
	}

	n := min(len(run.Payload.Chunks), max(p.cfg.SummaryChunks, 1))
	texts := make([]string, 0, n)
	for _, c := range run.Payload.Chunks[:n] {
		texts = append(texts, c.Content)
	}

	summary, err := p.summarizer.Summarize(ctx, texts)
	if err != nil {
		return err
	}
	if summary == "" {
		return nil
	}
	return p.store.SetSummary(ctx, run.DocumentID, run.UserID, summary)
}

func (p *Pipeline) embed(ctx context.Context, s *runState) error {
	run := s.run
	if run.Payload == nil {
		return nil
	}

	records := run.Payload.Chunks
	batch := max(p.cfg.EmbedBatch, 1)
	for lo := 0; lo < len(records); lo += batch {
		hi := min(lo+batch, len(records))
		texts := make([]string, 0, hi-lo)
		for _, r := range records[lo:hi] {
			texts = append(texts, r.Content)
		}

		vecs, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", lo, hi-1, err)
		}

		byIndex := make(map[int][]float32, len(vecs))
		for i, v := range vecs {
			if p.cfg.EmbedDim > 0 && len(v) != p.cfg.EmbedDim {
				return core.Validation(fmt.Sprintf("embedding for chunk %d has %d dimensions, want %d", lo+i, len(v), p.cfg.EmbedDim))
			}
			byIndex[lo+i] = v
		}
		if err := p.store.SetChunkEmbeddings(ctx, run.DocumentID, run.UserID, byIndex); err != nil {
			return fmt.Errorf("store embeddings: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) markCompleted(ctx context.Context, s *runState) error {
	if err := p.store.UpdateDocumentStatus(ctx, s.run.DocumentID, s.run.UserID, models.StatusCompleted, nil); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return core.NewError(core.ErrPersist, "Failed to update document status: "+err.Error(), err)
	}
	return nil
}

func chunkCount(run *models.IngestionRun) int {
	if run.Payload == nil {
		return 0
	}
	return len(run.Payload.Chunks)
}

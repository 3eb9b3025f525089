package ingestion_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/markdave123-py/documind/internal/core"
	"github.com/markdave123-py/documind/internal/logger"
	"github.com/markdave123-py/documind/internal/models"
)

// UploadTopic carries models.UploadEvent payloads from intake to the ingestor.
const UploadTopic = "document.uploaded"

// NewEventBus returns the in-process pub/sub used between intake and ingestion.
func NewEventBus(buffer int, log *zap.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(buffer),
	}, logger.NewWatermillAdapter(log))
}

// UploadPublisher publishes upload events on a watermill publisher.
type UploadPublisher struct {
	pub message.Publisher
}

var _ core.EventPublisher = (*UploadPublisher)(nil)

func NewUploadPublisher(pub message.Publisher) *UploadPublisher {
	return &UploadPublisher{pub: pub}
}

func (p *UploadPublisher) PublishUpload(ctx context.Context, evt models.UploadEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode upload event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.pub.Publish(UploadTopic, msg)
}

// DocumentIngestor consumes upload events and runs the pipeline for each on a
// pool of workers. An event is acknowledged once its run is checkpointed, so
// events accepted before a restart are recovered from the run table.
type DocumentIngestor struct {
	sub      message.Subscriber
	runs     core.RunStore
	pipeline *Pipeline
	cfg      IngestConfig
	log      *zap.Logger

	jobs     chan models.UploadEvent
	inFlight sync.Map
	wg       sync.WaitGroup
}

func NewDocumentIngestor(sub message.Subscriber, runs core.RunStore, pipeline *Pipeline, cfg IngestConfig, log *zap.Logger) *DocumentIngestor {
	return &DocumentIngestor{
		sub:      sub,
		runs:     runs,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log.Named("ingestor"),
		jobs:     make(chan models.UploadEvent, max(cfg.QueueSize, 1)),
	}
}

// Start recovers unfinished runs, subscribes to UploadTopic and launches the
// workers. Workers stop when ctx is cancelled; Wait blocks until they have.
func (i *DocumentIngestor) Start(ctx context.Context) error {
	pending, err := i.runs.ListUnfinishedRuns(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished runs: %w", err)
	}

	msgs, err := i.sub.Subscribe(ctx, UploadTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", UploadTopic, err)
	}

	workers := max(i.cfg.Workers, 1)
	for w := 1; w <= workers; w++ {
		i.wg.Add(1)
		go i.work(ctx, w)
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for _, run := range pending {
			i.log.Info("recovering unfinished run",
				zap.String("document_id", run.DocumentID), zap.String("state", run.State), zap.Strings("completed", run.CompletedSteps))
			if !i.enqueue(ctx, run.Event) {
				return
			}
		}
	}()

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		for msg := range msgs {
			i.accept(ctx, msg)
		}
	}()

	i.log.Info("ingestor started", zap.Int("workers", workers), zap.Int("recovered", len(pending)))
	return nil
}

// Wait blocks until every worker and dispatcher goroutine has returned.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// accept checkpoints a new run for the event, acks the message and queues it.
func (i *DocumentIngestor) accept(ctx context.Context, msg *message.Message) {
	var evt models.UploadEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil || evt.DocID == "" {
		i.log.Error("dropping malformed upload event", zap.String("message_id", msg.UUID), zap.Error(err))
		msg.Ack()
		return
	}

	run, err := i.runs.GetIngestionRun(ctx, evt.DocID)
	if err == nil && run == nil {
		err = i.runs.SaveIngestionRun(ctx, &models.IngestionRun{
			DocumentID: evt.DocID,
			UserID:     evt.UserID,
			State:      models.RunPending,
			Event:      evt,
		})
	}
	if err != nil {
		i.log.Warn("checkpoint upload event", zap.String("document_id", evt.DocID), zap.Error(err))
		msg.Nack()
		return
	}

	msg.Ack()
	i.enqueue(ctx, evt)
}

func (i *DocumentIngestor) enqueue(ctx context.Context, evt models.UploadEvent) bool {
	select {
	case i.jobs <- evt:
		return true
	case <-ctx.Done():
		return false
	}
}

func (i *DocumentIngestor) work(ctx context.Context, id int) {
	defer i.wg.Done()
	for {
		select {
		case <-ctx.Done():
			i.log.Debug("worker shutting down", zap.Int("worker", id))
			return
		case evt := <-i.jobs:
			i.process(ctx, id, evt)
		}
	}
}

// process runs one event unless another worker already holds the document.
func (i *DocumentIngestor) process(ctx context.Context, worker int, evt models.UploadEvent) {
	if _, busy := i.inFlight.LoadOrStore(evt.DocID, struct{}{}); busy {
		i.log.Debug("document already in flight", zap.String("document_id", evt.DocID))
		return
	}
	defer i.inFlight.Delete(evt.DocID)

	i.log.Info("processing document",
		zap.String("document_id", evt.DocID), zap.String("file_type", evt.FileType), zap.Int("worker", worker))
	if err := i.pipeline.Run(ctx, evt); err != nil {
		i.log.Warn("document ingestion failed", zap.String("document_id", evt.DocID), zap.Error(err))
	}
}

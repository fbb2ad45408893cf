package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/consumer"
	"github.com/marminbh/discourse-autoreply/internal/dispatcher"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

// Source yields queued deliveries until its context is cancelled.
type Source interface {
	Deliveries(ctx context.Context) (<-chan consumer.Delivery, error)
}

// TemplateProvider resolves the canned response.
type TemplateProvider interface {
	Get(ctx context.Context) (string, error)
}

// ReplyDispatcher sends the reply for one event.
type ReplyDispatcher interface {
	Dispatch(ctx context.Context, event models.SolvedAnswerEvent, template string) dispatcher.Result
}

// Worker consumes solved events and replies to them, one batch at a time
type Worker struct {
	cfg        config.QueueConfig
	source     Source
	templates  TemplateProvider
	dispatcher ReplyDispatcher
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool
}

// NewWorker creates a new worker instance with dependencies
func NewWorker(cfg config.QueueConfig, source Source, templates TemplateProvider, replies ReplyDispatcher, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:        cfg,
		source:     source,
		templates:  templates,
		dispatcher: replies,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins consuming in the background
func (w *Worker) Start() error {
	if w.cfg.Name == "" {
		return fmt.Errorf("queue name is required")
	}

	deliveries, err := w.source.Deliveries(w.ctx)
	if err != nil {
		return err
	}

	batcher := &consumer.Batcher{
		Queue:  w.cfg.Name,
		Size:   w.cfg.BatchSize,
		Wait:   w.cfg.BatchWait,
		Logger: w.logger,
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		batcher.Run(w.ctx, deliveries, w)
	}()

	w.started = true
	w.logger.Info("Worker started and consuming messages",
		zap.String("queue", w.cfg.Name),
		zap.Int("batch_size", w.cfg.BatchSize),
		zap.Duration("batch_wait", w.cfg.BatchWait),
	)
	return nil
}

// Stop gracefully stops the worker and waits for the current batch
func (w *Worker) Stop() error {
	if !w.started {
		return nil
	}
	w.logger.Info("Stopping worker", zap.String("queue", w.cfg.Name))
	w.cancel()
	w.wg.Wait()
	w.started = false
	w.logger.Info("Worker stopped")
	return nil
}

// NewBatch implements consumer.BatchHandler. The template is resolved once
// per batch.
func (w *Worker) NewBatch(ctx context.Context, size int) (consumer.EventHandler, error) {
	template, err := w.templates.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve canned response: %w", err)
	}

	w.logger.Debug("Beginning to handle batch", zap.Int("batch_size", size))
	return &batch{worker: w, template: template}, nil
}

type batch struct {
	worker   *Worker
	template string
}

// HandleEvent decodes one queued event and dispatches it. Only undecodable
// messages return an error; dispatch failures are logged by the dispatcher
// and the message is acknowledged.
func (b *batch) HandleEvent(ctx context.Context, body []byte) error {
	event, err := models.DecodeSolvedEvent(body)
	if err != nil {
		return fmt.Errorf("failed to decode solved event: %w", err)
	}

	b.worker.logger.Info("Handling solved event",
		zap.Int("topic_id", event.TopicID),
		zap.Int("post_number", event.PostNumber),
	)

	b.worker.dispatcher.Dispatch(ctx, event, b.template)
	return nil
}

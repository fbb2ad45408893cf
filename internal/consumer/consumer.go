package consumer

import (
	"context"

	"go.uber.org/zap"
)

// Delivery is one queued message, independent of the broker it came from.
type Delivery struct {
	ID   string
	Body []byte
	Ack  func() error
	Nack func(requeue bool) error
}

// EventHandler handles the messages of a single batch
type EventHandler interface {
	HandleEvent(ctx context.Context, body []byte) error
}

// BatchHandler is the interface that consumers must implement. NewBatch runs
// once per batch before any message is handled; an error fails the whole batch.
type BatchHandler interface {
	NewBatch(ctx context.Context, size int) (EventHandler, error)
}

// ProcessBatch processes a batch following the abstract consumer pattern:
// 1. Prepares the batch through the handler's NewBatch method
// 2. Calls HandleEvent for each message, sequentially and in order
// 3. ACKs on success, NACKs (no requeue) on failure
// When NewBatch fails every message is NACKed with requeue.
func ProcessBatch(
	ctx context.Context,
	logger *zap.Logger,
	queue string,
	batch []Delivery,
	handler BatchHandler,
) {
	if len(batch) == 0 {
		return
	}

	logger.Info("Received batch from queue",
		zap.String("queue", queue),
		zap.Int("batch_size", len(batch)),
	)

	events, err := handler.NewBatch(ctx, len(batch))
	if err != nil {
		logger.Error("Failed to prepare batch, requeueing",
			zap.String("queue", queue),
			zap.Int("batch_size", len(batch)),
			zap.Error(err),
		)
		for _, msg := range batch {
			nackMessage(logger, msg, true)
		}
		return
	}

	for _, msg := range batch {
		if err := events.HandleEvent(ctx, msg.Body); err != nil {
			logger.Error("Failed to process message from queue",
				zap.String("queue", queue),
				zap.String("delivery_id", msg.ID),
				zap.ByteString("body", msg.Body),
				zap.Error(err),
			)
			nackMessage(logger, msg, false)
			continue
		}

		if err := msg.Ack(); err != nil {
			logger.Error("Failed to ack message from queue",
				zap.String("queue", queue),
				zap.String("delivery_id", msg.ID),
				zap.Error(err),
			)
			continue
		}

		logger.Debug("Message from queue processed successfully",
			zap.String("queue", queue),
			zap.String("delivery_id", msg.ID),
		)
	}
}

func nackMessage(logger *zap.Logger, msg Delivery, requeue bool) {
	logger.Debug("Rejecting message",
		zap.String("delivery_id", msg.ID),
		zap.Bool("requeue", requeue),
	)
	if err := msg.Nack(requeue); err != nil {
		logger.Error("Failed to nack a message",
			zap.String("delivery_id", msg.ID),
			zap.Error(err),
		)
	}
}

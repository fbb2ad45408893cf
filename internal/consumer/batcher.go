package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Batcher groups deliveries into batches and hands them to ProcessBatch one
// batch at a time, so messages are handled strictly in arrival order.
type Batcher struct {
	Queue  string
	Size   int
	Wait   time.Duration
	Logger *zap.Logger
}

// Run consumes until ctx is cancelled or in is closed. A batch is closed when it
// reaches Size or Wait has elapsed since its first message.
func (b *Batcher) Run(ctx context.Context, in <-chan Delivery, handler BatchHandler) {
	size := b.Size
	if size <= 0 {
		size = 1
	}

	// Cancellation stops receiving, not the batch in flight.
	work := context.WithoutCancel(ctx)

	for {
		batch, open := b.collect(ctx, in, size)
		// Partial batches are flushed on shutdown too.
		ProcessBatch(work, b.Logger, b.Queue, batch, handler)
		if !open {
			return
		}
	}
}

func (b *Batcher) collect(ctx context.Context, in <-chan Delivery, size int) ([]Delivery, bool) {
	var first Delivery
	select {
	case <-ctx.Done():
		return nil, false
	case msg, ok := <-in:
		if !ok {
			return nil, false
		}
		first = msg
	}

	batch := []Delivery{first}
	if size == 1 {
		return batch, true
	}

	timer := time.NewTimer(b.Wait)
	defer timer.Stop()

	for len(batch) < size {
		select {
		case <-ctx.Done():
			return batch, false
		case <-timer.C:
			return batch, true
		case msg, ok := <-in:
			if !ok {
				return batch, false
			}
			batch = append(batch, msg)
		}
	}
	return batch, true
}

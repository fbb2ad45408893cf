// Package redisstream carries solved events over a Redis stream using watermill.
//
// Watermill hands a subscriber the next message only after the current one is
// acked or nacked, so batches on this transport always hold a single message.
package redisstream

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/consumer"
)

var errAlreadySettled = errors.New("message already acked or nacked")

// Transport publishes to and consumes from one stream.
type Transport struct {
	client     redis.UniversalClient
	publisher  *redisstream.Publisher
	subscriber *redisstream.Subscriber
	topic      string
	logger     *zap.Logger
}

// New builds a publisher and a consumer-group subscriber on the given stream.
func New(client redis.UniversalClient, topic, consumerGroup string, logger *zap.Logger) (*Transport, error) {
	wmLogger := newZapAdapter(logger)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis stream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
		Consumer:      "autoreply-worker-" + uuid.NewString(),
		ConsumerGroup: consumerGroup,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create redis stream subscriber: %w", err)
	}

	return &Transport{
		client:     client,
		publisher:  publisher,
		subscriber: subscriber,
		topic:      topic,
		logger:     logger,
	}, nil
}

func (t *Transport) Publish(ctx context.Context, body []byte) error {
	msg := message.NewMessage(uuid.NewString(), body)
	msg.SetContext(ctx)
	if err := t.publisher.Publish(t.topic, msg); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", t.topic, err)
	}
	return nil
}

// Deliveries subscribes to the stream. The channel closes when ctx is done.
func (t *Transport) Deliveries(ctx context.Context) (<-chan consumer.Delivery, error) {
	messages, err := t.subscriber.Subscribe(ctx, t.topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to stream %s: %w", t.topic, err)
	}

	t.logger.Info("Subscribed to redis stream", zap.String("queue", t.topic))

	out := make(chan consumer.Delivery)
	go func() {
		defer close(out)
		for msg := range messages {
			select {
			case out <- toDelivery(msg):
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// IsHealthy pings the shared Redis client.
func (t *Transport) IsHealthy(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close stops both ends. Publisher and subscriber each close the shared Redis
// client, so whichever goes second finds it already closed.
func (t *Transport) Close() error {
	return errors.Join(ignoreClosed(t.subscriber.Close()), ignoreClosed(t.publisher.Close()))
}

func ignoreClosed(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// toDelivery maps a reject without requeue to an ack: the stream has no dead
// letter target and a rejected message must not come back.
func toDelivery(msg *message.Message) consumer.Delivery {
	return consumer.Delivery{
		ID:   msg.UUID,
		Body: msg.Payload,
		Ack: func() error {
			if !msg.Ack() {
				return errAlreadySettled
			}
			return nil
		},
		Nack: func(requeue bool) error {
			settled := false
			if requeue {
				settled = msg.Nack()
			} else {
				settled = msg.Ack()
			}
			if !settled {
				return errAlreadySettled
			}
			return nil
		},
	}
}

package rabbitmq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/consumer"
)

// Publisher enqueues solved events on a RabbitMQ queue.
type Publisher struct {
	conn       *Connection
	exchange   string
	routingKey string
}

// NewPublisher publishes to exchange with routingKey; the default exchange with
// the queue name as routing key targets the queue directly.
func NewPublisher(conn *Connection, exchange, routingKey string) *Publisher {
	return &Publisher{conn: conn, exchange: exchange, routingKey: routingKey}
}

func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	return p.conn.PublishMessage(ctx, p.exchange, p.routingKey, body)
}

// Source consumes a queue and exposes its messages as consumer deliveries.
type Source struct {
	conn          *Connection
	queue         string
	prefetchCount int
	consumerTag   string
	logger        *zap.Logger
}

func NewSource(conn *Connection, queue string, prefetchCount int, logger *zap.Logger) *Source {
	return &Source{
		conn:          conn,
		queue:         queue,
		prefetchCount: prefetchCount,
		consumerTag:   "autoreply-worker-" + uuid.NewString(),
		logger:        logger,
	}
}

// Deliveries starts consuming. The returned channel is closed once ctx is done.
func (s *Source) Deliveries(ctx context.Context) (<-chan consumer.Delivery, error) {
	messages, err := s.conn.ConsumeMessages(s.queue, s.consumerTag, s.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from queue %s: %w", s.queue, err)
	}

	s.logger.Info("Consumer registered successfully",
		zap.String("queue", s.queue),
		zap.String("consumer_tag", s.consumerTag),
		zap.Int("prefetch_count", s.prefetchCount),
	)

	out := make(chan consumer.Delivery)
	go s.forward(ctx, messages, out)
	return out, nil
}

func (s *Source) forward(ctx context.Context, messages <-chan amqp.Delivery, out chan<- consumer.Delivery) {
	defer close(out)
	defer s.cancelConsumer()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				s.logger.Warn("Message channel closed, attempting to restart consumer...",
					zap.String("queue", s.queue),
				)
				messages, ok = s.restart(ctx)
				if !ok {
					return
				}
				continue
			}
			select {
			case out <- toDelivery(msg):
			case <-ctx.Done():
				// Unhandled; the broker redelivers it once the channel closes.
				return
			}
		}
	}
}

// restart keeps trying to consume again until it succeeds or ctx is cancelled.
func (s *Source) restart(ctx context.Context) (<-chan amqp.Delivery, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(2 * time.Second):
		}

		if !s.conn.IsHealthy() {
			s.logger.Debug("Connection not healthy yet, waiting...",
				zap.String("queue", s.queue),
			)
			continue
		}

		messages, err := s.conn.ConsumeMessages(s.queue, s.consumerTag, s.prefetchCount)
		if err != nil {
			s.logger.Error("Failed to restart consuming after channel close, will retry",
				zap.String("queue", s.queue),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("Successfully restarted consumer after channel close",
			zap.String("queue", s.queue),
		)
		return messages, true
	}
}

func (s *Source) cancelConsumer() {
	ch := s.conn.GetChannel()
	if ch == nil || ch.IsClosed() {
		return
	}
	if err := ch.Cancel(s.consumerTag, false); err != nil {
		s.logger.Error("Failed to cancel consumer",
			zap.String("consumer_tag", s.consumerTag),
			zap.Error(err),
		)
	}
}

func toDelivery(msg amqp.Delivery) consumer.Delivery {
	id := msg.MessageId
	if id == "" {
		id = strconv.FormatUint(msg.DeliveryTag, 10)
	}
	return consumer.Delivery{
		ID:   id,
		Body: msg.Body,
		Ack: func() error {
			return msg.Ack(false)
		},
		Nack: func(requeue bool) error {
			return msg.Nack(false, requeue)
		},
	}
}

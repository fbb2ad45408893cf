package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/config"
)

const maxBackoff = 30 * time.Second

var errConnectionClosed = errors.New("rabbitmq connection closed")

// Connection manages RabbitMQ connection and channel with automatic recovery
type Connection struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       *config.RabbitMQConfig
	logger       *zap.Logger
	stopChan     chan struct{}
	mu           sync.RWMutex
	reconnecting bool
	reconnectMu  sync.Mutex
}

// NewConnection creates a new Connection instance
func NewConnection(rabbitMQConfig *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config:   rabbitMQConfig,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// cappedExponential doubles from one second up to maxBackoff.
func cappedExponential(attempt uint) time.Duration {
	d := backoff.Exponential(time.Second, 2)(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Connect establishes a connection to RabbitMQ and starts monitoring for reconnection
func (c *Connection) Connect() error {
	attempts := c.config.ConnectAttempts
	if attempts <= 0 {
		attempts = 10
	}

	err := retry.Retry(func(attempt uint) error {
		c.logger.Info("Attempting initial connection to RabbitMQ",
			zap.Uint("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
		)
		if err := c.connect(); err != nil {
			c.logger.Warn("Initial connection to RabbitMQ failed, retrying...",
				zap.Error(err),
				zap.Uint("attempt", attempt+1),
			)
			return err
		}
		return nil
	},
		strategy.Limit(uint(attempts)),
		strategy.Backoff(cappedExponential),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	go c.monitorConnection()
	return nil
}

// stopped reports whether Close has been called.
func (c *Connection) stopped() bool {
	select {
	case <-c.stopChan:
		return true
	default:
		return false
	}
}

// connect performs the actual connection logic. It refuses to dial once the
// connection has been closed; Close holds the same lock, so no dial can outlive it.
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped() {
		return errConnectionClosed
	}

	// Close existing connection if any
	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	// Heartbeat: 10 seconds (helps detect dead connections quickly)
	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": "discourse-autoreply",
		},
	}

	conn, err := amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = channel

	c.logger.Info("Successfully connected to RabbitMQ",
		zap.String("host", c.config.Host),
		zap.String("vhost", c.config.VHost),
		zap.Duration("heartbeat", amqpConfig.Heartbeat),
	)
	return nil
}

// monitorConnection monitors the connection and automatically reconnects on failure
func (c *Connection) monitorConnection() {
	for {
		if c.stopped() {
			return
		}
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			c.logger.Error("Connection or channel not initialized, cannot monitor connection")
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.stopChan:
			return
		case err := <-connClose:
			if err == nil {
				// Graceful close
				return
			}
			c.logger.Error("RabbitMQ connection closed, attempting to reconnect",
				zap.Error(err),
				zap.String("reason", err.Reason),
			)
			c.reconnect()
		case err := <-channelClose:
			if err == nil {
				return
			}
			c.logger.Error("RabbitMQ channel closed, attempting to reconnect",
				zap.Error(err),
				zap.String("reason", err.Reason),
			)
			c.reconnect()
		}
	}
}

// reconnect retries until connected or the connection is closed
func (c *Connection) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	notStopped := func(uint) bool {
		return !c.stopped()
	}

	// The backoff sleep runs after notStopped, so connect checks again.
	err := retry.Retry(func(attempt uint) error {
		if err := c.connect(); err != nil {
			if errors.Is(err, errConnectionClosed) {
				return err
			}
			c.logger.Warn("Failed to reconnect to RabbitMQ, retrying...",
				zap.Error(err),
				zap.Uint("attempt", attempt+1),
			)
			return err
		}
		c.logger.Info("Successfully reconnected to RabbitMQ",
			zap.Uint("attempt", attempt+1),
		)
		return nil
	},
		notStopped,
		strategy.Backoff(cappedExponential),
	)
	if err != nil {
		c.logger.Info("Stopped reconnecting to RabbitMQ", zap.Error(err))
	}
}

// Close closes the RabbitMQ connection and channel and stops reconnection monitoring
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// DeclareQueue declares a durable queue so publishers and consumers agree on it.
func (c *Connection) DeclareQueue(name string) error {
	ch := c.GetChannel()
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

// PublishMessage publishes a persistent JSON message with retry on connection loss
func (c *Connection) PublishMessage(ctx context.Context, exchange, routingKey string, body []byte) error {
	maxRetries := 3
	retryDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		ch := c.GetChannel()

		if ch == nil || ch.IsClosed() {
			if attempt < maxRetries-1 {
				c.logger.Warn("RabbitMQ channel not available for publish, retrying...",
					zap.Int("attempt", attempt+1),
					zap.Int("max_retries", maxRetries),
				)
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			return fmt.Errorf("RabbitMQ channel is not initialized or closed after %d attempts", maxRetries)
		}

		err := ch.PublishWithContext(ctx,
			exchange,
			routingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    uuid.NewString(),
				Timestamp:    time.Now(),
				Body:         body,
			},
		)
		if err != nil {
			if attempt < maxRetries-1 && ch.IsClosed() {
				c.logger.Warn("Publish failed due to connection issue, retrying...",
					zap.Error(err),
					zap.Int("attempt", attempt+1),
				)
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			return fmt.Errorf("failed to publish message: %w", err)
		}

		return nil
	}

	return fmt.Errorf("failed to publish message after %d attempts", maxRetries)
}

// ConsumeMessages sets the prefetch window and starts a manual-ack consumer
func (c *Connection) ConsumeMessages(queue, consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error) {
	ch := c.GetChannel()
	if ch == nil || ch.IsClosed() {
		return nil, fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := ch.Consume(
		queue,
		consumerTag,
		false, // auto-ack (we'll manually ACK)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	return messages, nil
}

// GetChannel returns the current channel
func (c *Connection) GetChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// IsHealthy checks if the connection and channel are healthy
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

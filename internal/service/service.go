package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/cache"
	"github.com/marminbh/discourse-autoreply/internal/canned"
	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/dispatcher"
	"github.com/marminbh/discourse-autoreply/internal/forum"
	"github.com/marminbh/discourse-autoreply/internal/handlers"
	"github.com/marminbh/discourse-autoreply/internal/rabbitmq"
	"github.com/marminbh/discourse-autoreply/internal/redisstream"
	"github.com/marminbh/discourse-autoreply/internal/worker"
)

// Queue is a queue backend: the webhook publishes to it and the worker consumes from it.
type Queue interface {
	handlers.Publisher
	worker.Source
	IsHealthy(ctx context.Context) error
	Close() error
}

// Service holds all application dependencies
// This eliminates global state and enables proper dependency injection
type Service struct {
	Config     *config.Config
	Logger     *zap.Logger
	Cache      cache.Store
	Forum      *forum.Client
	Templates  *canned.Provider
	Dispatcher *dispatcher.Dispatcher
	Queue      Queue
	Worker     *worker.Worker

	closers []func() error
}

// NewReplyService wires everything needed to resolve the canned response and
// send replies, without connecting to a queue.
func NewReplyService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s := &Service{Config: cfg, Logger: logger}

	if cfg.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		s.Cache = store
		logger.Info("Using redis cache for the canned response")
	} else {
		s.Cache = cache.NewMemoryStore()
		logger.Info("REDIS_URL not set, using in-process cache for the canned response")
	}

	s.closers = append(s.closers, s.Cache.Close)

	s.Forum = forum.NewClient(cfg.Forum, logger)
	s.Templates = canned.NewProvider(canned.Config{
		PostID:          cfg.Forum.CannedPostID,
		DefaultResponse: cfg.Forum.DefaultResponse,
		CacheKey:        cfg.Cache.Key,
		TTL:             cfg.Cache.TTL,
	}, s.Forum, s.Cache, logger)
	s.Dispatcher = dispatcher.NewDispatcher(dispatcher.Config{
		Mode:    cfg.Forum.ReplyMode,
		PMTitle: cfg.Forum.PMTitle,
	}, s.Forum, logger)

	return s, nil
}

// NewService creates a new service instance with all dependencies, including
// the configured queue backend and the worker consuming from it.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	s, err := NewReplyService(cfg, logger)
	if err != nil {
		return nil, err
	}

	queueCfg := cfg.Queue
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		store, ok := s.Cache.(*cache.RedisStore)
		if !ok {
			_ = s.Close()
			return nil, fmt.Errorf("QUEUE_BACKEND=redis requires REDIS_URL")
		}
		transport, err := redisstream.New(store.Client(), cfg.Queue.Name, cfg.Queue.ConsumerGroup, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		// The transport closes the shared Redis client.
		s.closers = nil
		s.Queue = transport
		queueCfg.BatchSize = 1
	default:
		q, err := connectRabbitMQ(cfg, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Queue = q
	}
	s.closers = append(s.closers, s.Queue.Close)

	s.Worker = worker.NewWorker(queueCfg, s.Queue, s.Templates, s.Dispatcher, logger)
	logger.Info("Queue backend ready",
		zap.String("backend", cfg.Queue.Backend),
		zap.String("queue", cfg.Queue.Name),
	)
	return s, nil
}

// HealthChecks returns the dependency checks served on /health.
func (s *Service) HealthChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{
		"cache": s.Cache.Ping,
	}
	if s.Queue != nil {
		checks["queue"] = s.Queue.IsHealthy
	}
	return checks
}

// Close stops the worker and releases connections in reverse order of creation.
func (s *Service) Close() error {
	var errs []error
	if s.Worker != nil {
		errs = append(errs, s.Worker.Stop())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// rabbitQueue adapts a RabbitMQ connection to the Queue interface.
type rabbitQueue struct {
	*rabbitmq.Publisher
	*rabbitmq.Source
	conn *rabbitmq.Connection
}

func connectRabbitMQ(cfg *config.Config, logger *zap.Logger) (*rabbitQueue, error) {
	conn := rabbitmq.NewConnection(&cfg.RabbitMQ, logger)
	if err := conn.Connect(); err != nil {
		return nil, err
	}

	if cfg.RabbitMQ.DeclareQueue {
		if err := conn.DeclareQueue(cfg.Queue.Name); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &rabbitQueue{
		Publisher: rabbitmq.NewPublisher(conn, cfg.RabbitMQ.Exchange, cfg.Queue.Name),
		Source:    rabbitmq.NewSource(conn, cfg.Queue.Name, cfg.RabbitMQ.PrefetchCount, logger),
		conn:      conn,
	}, nil
}

func (q *rabbitQueue) IsHealthy(context.Context) error {
	if !q.conn.IsHealthy() {
		return errors.New("rabbitmq connection is down")
	}
	return nil
}

func (q *rabbitQueue) Close() error {
	q.conn.Close()
	return nil
}

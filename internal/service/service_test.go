package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/cache"
	"github.com/marminbh/discourse-autoreply/internal/config"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Forum: config.ForumConfig{
			BaseURL:      "http://forum.invalid",
			APIKey:       "key",
			APIUsername:  "system",
			CannedPostID: 1234,
			ReplyMode:    models.ReplyModePrivateMessage,
			Timeout:      time.Second,
		},
		Cache: config.CacheConfig{Key: "canned_response", TTL: time.Hour},
		Queue: config.QueueConfig{
			Backend:       config.BackendRedis,
			Name:          "solved-events",
			BatchSize:     10,
			BatchWait:     time.Second,
			ConsumerGroup: "autoreply",
		},
	}
}

func TestNewReplyServiceUsesMemoryCacheWithoutRedis(t *testing.T) {
	s, err := NewReplyService(testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if _, ok := s.Cache.(*cache.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s.Cache)
	}
	if s.Queue != nil || s.Worker != nil {
		t.Fatalf("expected no queue for reply-only service")
	}
	if _, ok := s.HealthChecks()["queue"]; ok {
		t.Fatalf("expected no queue health check")
	}
}

func TestNewServiceWithRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	s, err := NewService(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, ok := s.Cache.(*cache.RedisStore)
	if !ok {
		t.Fatalf("expected redis store, got %T", s.Cache)
	}
	if s.Worker == nil || s.Queue == nil {
		t.Fatalf("expected queue and worker to be wired")
	}

	ctx := context.Background()
	for name, check := range s.HealthChecks() {
		if err := check(ctx); err != nil {
			t.Fatalf("expected %s healthy, got %v", name, err)
		}
	}

	if err := s.Queue.Publish(ctx, []byte(`{"topic_id":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries, err := store.Client().XRange(ctx, "solved-events", "-", "+").Result()
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stream entry, got %d", len(entries))
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewServiceRedisBackendRequiresRedis(t *testing.T) {
	if _, err := NewService(testConfig(), zap.NewNop()); err == nil {
		t.Fatalf("expected error without REDIS_URL")
	}
}

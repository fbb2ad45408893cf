package canned

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marminbh/discourse-autoreply/internal/cache"
	"github.com/marminbh/discourse-autoreply/internal/models"
)

// ErrNoTemplate means the canned post could not be fetched and no default is set.
var ErrNoTemplate = errors.New("canned response unavailable")

// PostFetcher loads a forum post by id.
type PostFetcher interface {
	GetPost(ctx context.Context, postID int) (*models.Post, error)
}

type Config struct {
	PostID          int
	DefaultResponse string
	CacheKey        string
	TTL             time.Duration
}

// Provider resolves the auto-reply template, cache first.
type Provider struct {
	cfg    Config
	forum  PostFetcher
	cache  cache.Store
	logger *zap.Logger
}

func NewProvider(cfg Config, forum PostFetcher, store cache.Store, logger *zap.Logger) *Provider {
	if cfg.CacheKey == "" {
		cfg.CacheKey = "canned_response"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	// A blank default disables the fallback.
	if strings.TrimSpace(cfg.DefaultResponse) == "" {
		cfg.DefaultResponse = ""
	}
	return &Provider{
		cfg:    cfg,
		forum:  forum,
		cache:  store,
		logger: logger,
	}
}

// Get returns the current template. With a default configured it never fails.
func (p *Provider) Get(ctx context.Context) (string, error) {
	if cached, ok := p.fromCache(ctx); ok {
		p.logger.Debug("Using cached canned response", zap.String("key", p.cfg.CacheKey))
		return cached, nil
	}

	post, err := p.forum.GetPost(ctx, p.cfg.PostID)
	if err != nil {
		if p.cfg.DefaultResponse != "" {
			p.logger.Warn("Failed to fetch canned response, using default",
				zap.Int("post_id", p.cfg.PostID),
				zap.Error(err),
			)
			return p.cfg.DefaultResponse, nil
		}
		return "", fmt.Errorf("%w: %v", ErrNoTemplate, err)
	}

	if err := p.cache.Put(ctx, p.cfg.CacheKey, post.Raw, p.cfg.TTL); err != nil {
		p.logger.Warn("Failed to cache canned response",
			zap.String("key", p.cfg.CacheKey),
			zap.Error(err),
		)
	}

	p.logger.Info("Fetched canned response",
		zap.Int("post_id", p.cfg.PostID),
		zap.Duration("ttl", p.cfg.TTL),
	)
	return post.Raw, nil
}

func (p *Provider) fromCache(ctx context.Context) (string, bool) {
	val, ok, err := p.cache.Get(ctx, p.cfg.CacheKey)
	if err != nil {
		p.logger.Warn("Canned response cache read failed, fetching from forum",
			zap.String("key", p.cfg.CacheKey),
			zap.Error(err),
		)
		return "", false
	}
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

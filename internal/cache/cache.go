/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based read-through layer for slideshows and
// the music library.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

// Default TTL values for different cache types
const (
	DefaultSlideshowTTL = 10 * time.Minute
	DefaultMusicTTL     = 1 * time.Hour
	DefaultTaglineTTL   = 1 * time.Hour
)

// Key prefixes for Redis cache
const (
	keyRoot      = "slidify:cache:"
	KeySlideshow = keyRoot + "slideshow:" // + slideshow_id
	KeyMusic     = keyRoot + "music"
	KeyTaglines  = keyRoot + "taglines"
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SlideshowTTL time.Duration
	MusicTTL     time.Duration
	TaglineTTL   time.Duration

	// DisableOnError trips the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SlideshowTTL:   DefaultSlideshowTTL,
		MusicTTL:       DefaultMusicTTL,
		TaglineTTL:     DefaultTaglineTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. An unreachable Redis yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Disabled returns a cache that never stores anything.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{logger: logger, disabled: true}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to redis error")
	}
}

func (c *Cache) getRaw(ctx context.Context, kind, key string) ([]byte, bool) {
	if !c.IsAvailable() {
		return nil, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "miss").Inc()
		return nil, false
	}
	if err != nil {
		telemetry.CacheRequestsTotal.WithLabelValues(kind, "error").Inc()
		c.handleError(err, "get")
		return nil, false
	}
	telemetry.CacheRequestsTotal.WithLabelValues(kind, "hit").Inc()
	return data, true
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

func (c *Cache) delete(ctx context.Context, keys ...string) error {
	if !c.IsAvailable() {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}
	return nil
}

// GetSlideshow returns a cached slideshow. Entries that no longer parse are
// evicted and reported as a miss.
func (c *Cache) GetSlideshow(ctx context.Context, id string) (*models.Slideshow, bool) {
	data, ok := c.getRaw(ctx, "slideshow", KeySlideshow+id)
	if !ok {
		return nil, false
	}
	show, err := models.ParseSlideshow(data)
	if err != nil {
		c.logger.Warn().Err(err).Str("slideshow_id", id).Msg("evicting malformed cached slideshow")
		_ = c.delete(ctx, KeySlideshow+id)
		return nil, false
	}
	return show, true
}

// SetSlideshow caches a slideshow by id.
func (c *Cache) SetSlideshow(ctx context.Context, show *models.Slideshow) error {
	return c.set(ctx, KeySlideshow+show.ID, show, c.config.SlideshowTTL)
}

// InvalidateSlideshow removes a slideshow from cache.
func (c *Cache) InvalidateSlideshow(ctx context.Context, id string) error {
	return c.delete(ctx, KeySlideshow+id)
}

// GetMusic returns the cached music library.
func (c *Cache) GetMusic(ctx context.Context) ([]models.MusicTrack, bool) {
	data, ok := c.getRaw(ctx, "music", KeyMusic)
	if !ok {
		return nil, false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		_ = c.delete(ctx, KeyMusic)
		return nil, false
	}
	tracks := make([]models.MusicTrack, 0, len(raw))
	for _, r := range raw {
		track, err := models.ParseMusicTrack(r)
		if err != nil {
			c.logger.Warn().Err(err).Msg("evicting malformed cached music library")
			_ = c.delete(ctx, KeyMusic)
			return nil, false
		}
		tracks = append(tracks, *track)
	}
	return tracks, true
}

// SetMusic caches the full music library.
func (c *Cache) SetMusic(ctx context.Context, tracks []models.MusicTrack) error {
	return c.set(ctx, KeyMusic, tracks, c.config.MusicTTL)
}

// InvalidateMusic removes the music library from cache.
func (c *Cache) InvalidateMusic(ctx context.Context) error {
	return c.delete(ctx, KeyMusic)
}

// GetTaglines returns the cached active taglines.
func (c *Cache) GetTaglines(ctx context.Context) ([]models.Tagline, bool) {
	data, ok := c.getRaw(ctx, "taglines", KeyTaglines)
	if !ok {
		return nil, false
	}
	var lines []models.Tagline
	if err := json.Unmarshal(data, &lines); err != nil {
		_ = c.delete(ctx, KeyTaglines)
		return nil, false
	}
	return lines, true
}

// SetTaglines caches the active taglines.
func (c *Cache) SetTaglines(ctx context.Context, lines []models.Tagline) error {
	return c.set(ctx, KeyTaglines, lines, c.config.TaglineTTL)
}

// InvalidateTaglines removes taglines from cache.
func (c *Cache) InvalidateTaglines(ctx context.Context) error {
	return c.delete(ctx, KeyTaglines)
}

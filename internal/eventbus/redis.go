/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/events"
)

// RedisBus fans change notifications out to other instances over Redis pub/sub.
// Local subscribers are always served by an in-process bus, so a Redis outage
// degrades to single-instance delivery rather than failing publishers.
type RedisBus struct {
	client *redis.Client
	local  *events.Bus
	nodeID string
	prefix string
	logger zerolog.Logger

	mu       sync.Mutex
	channels map[events.EventType]*redis.PubSub
	failures int
	maxFails int
	degraded bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	PoolSize      int
	DialTimeout   time.Duration
	MaxFailures   int
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		ChannelPrefix: "slidify:events:",
		PoolSize:      10,
		DialTimeout:   5 * time.Second,
		MaxFailures:   5,
	}
}

// NewRedisBus creates a Redis-backed event bus. An unreachable Redis yields a
// degraded bus that only delivers locally.
func NewRedisBus(cfg RedisConfig, nodeID string, logger zerolog.Logger) *RedisBus {
	logger = logger.With().Str("component", "eventbus.redis").Logger()
	ctx, cancel := context.WithCancel(context.Background())

	rb := &RedisBus{
		local:    events.NewBus(),
		nodeID:   nodeIDOrRandom(nodeID),
		prefix:   cfg.ChannelPrefix,
		logger:   logger,
		channels: make(map[events.EventType]*redis.PubSub),
		maxFails: cfg.MaxFailures,
		ctx:      ctx,
		cancel:   cancel,
	}

	rb.client = redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer pingCancel()
	if err := rb.client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, event bus delivering locally only")
		rb.degraded = true
		return rb
	}

	logger.Info().Str("addr", cfg.Addr).Str("node_id", rb.nodeID).Msg("redis event bus initialized")
	return rb
}

// Subscribe registers a local subscriber and ensures a Redis subscription for the type exists.
func (rb *RedisBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := rb.local.Subscribe(eventType)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.degraded {
		return sub
	}
	if _, ok := rb.channels[eventType]; !ok {
		ps := rb.client.Subscribe(rb.ctx, rb.prefix+string(eventType))
		rb.channels[eventType] = ps
		rb.wg.Add(1)
		go rb.receive(eventType, ps)
	}
	return sub
}

func (rb *RedisBus) receive(eventType events.EventType, ps *redis.PubSub) {
	defer rb.wg.Done()
	ch := ps.Channel()
	for {
		select {
		case <-rb.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				rb.logger.Error().Err(err).Msg("dropping malformed redis event")
				continue
			}
			if env.NodeID == rb.nodeID {
				continue
			}
			rb.local.Publish(eventType, env.Payload)
		}
	}
}

// Publish delivers locally and forwards to Redis for other instances.
func (rb *RedisBus) Publish(eventType events.EventType, payload events.Payload) {
	rb.local.Publish(eventType, payload)

	rb.mu.Lock()
	degraded := rb.degraded
	rb.mu.Unlock()
	if degraded {
		return
	}

	data, err := encodeEnvelope(eventType, payload, rb.nodeID)
	if err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("encode event failed")
		return
	}

	ctx, cancel := context.WithTimeout(rb.ctx, 2*time.Second)
	defer cancel()
	if err := rb.client.Publish(ctx, rb.prefix+string(eventType), data).Err(); err != nil {
		rb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("redis publish failed")
		rb.recordFailure()
		return
	}

	rb.mu.Lock()
	rb.failures = 0
	rb.mu.Unlock()
}

// Unsubscribe removes a local subscriber.
func (rb *RedisBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	rb.local.Unsubscribe(eventType, sub)
}

// Degraded reports whether the bus has fallen back to local delivery.
func (rb *RedisBus) Degraded() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.degraded
}

func (rb *RedisBus) recordFailure() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.failures++
	if rb.failures >= rb.maxFails && !rb.degraded {
		rb.logger.Warn().Int("failures", rb.failures).Msg("redis failure threshold reached, delivering locally only")
		rb.degraded = true
	}
}

// Close stops receivers and releases the Redis client.
func (rb *RedisBus) Close() error {
	rb.cancel()

	rb.mu.Lock()
	for eventType, ps := range rb.channels {
		if err := ps.Close(); err != nil {
			rb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("close redis subscription")
		}
	}
	rb.channels = make(map[events.EventType]*redis.PubSub)
	rb.mu.Unlock()

	rb.wg.Wait()
	return rb.client.Close()
}

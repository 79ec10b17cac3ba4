/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects one instance to run cluster-wide background
// work such as the orphan blob sweep.
package leadership

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/telemetry"
)

const (
	defaultElectionKey   = "slidify:leader:workers"
	defaultLeaseDuration = 15 * time.Second
	defaultRetryInterval = 5 * time.Second
	connectTimeout       = 5 * time.Second
	releaseTimeout       = 5 * time.Second
)

// releaseScript deletes the key only while we still own it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Elector reports whether this instance should run leader-only work.
type Elector interface {
	IsLeader() bool
}

// Always is an Elector for single-instance deployments.
type Always struct{}

// IsLeader always returns true.
func (Always) IsLeader() bool { return true }

// ElectionConfig configures leader election behavior.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey is the Redis key holding the leader's instance id.
	ElectionKey   string
	// LeaseDuration is how long a lease lives without renewal.
	LeaseDuration time.Duration
	// RetryInterval is how often the lease is renewed or contested.
	// It must be shorter than LeaseDuration.
	RetryInterval time.Duration
	InstanceID    string
}

// DefaultConfig returns default election configuration.
func DefaultConfig() ElectionConfig {
	return ElectionConfig{
		RedisAddr:     "localhost:6379",
		ElectionKey:   defaultElectionKey,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
	}
}

// Election holds a Redis lease that at most one instance owns at a time.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	config ElectionConfig

	leader   atomic.Bool
	leaderCh chan bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewElection connects to Redis. It fails when Redis is unreachable so the
// caller can fall back to Always.
func NewElection(config ElectionConfig, logger zerolog.Logger) (*Election, error) {
	if config.ElectionKey == "" {
		config.ElectionKey = defaultElectionKey
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RetryInterval <= 0 || config.RetryInterval >= config.LeaseDuration {
		config.RetryInterval = config.LeaseDuration / 3
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis for leader election: %w", err)
	}

	logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", config.InstanceID).
		Msg("connected to Redis for leader election")

	return &Election{
		client:   client,
		logger:   logger.With().Str("component", "leader_election").Logger(),
		config:   config,
		leaderCh: make(chan bool, 1),
	}, nil
}

// Start campaigns in the background until ctx is done or Stop is called.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().Dur("lease", e.config.LeaseDuration).Msg("starting leader election")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.attempt(ctx)

		ticker := time.NewTicker(e.config.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.attempt(ctx)
			}
		}
	}()
}

// Stop ends the campaign, releases a held lease and closes the client.
func (e *Election) Stop() error {
	var err error
	e.once.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()

		if e.leader.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if rerr := releaseScript.Run(ctx, e.client, []string{e.config.ElectionKey}, e.config.InstanceID).Err(); rerr != nil {
				e.logger.Error().Err(rerr).Msg("failed to release leadership lock")
			} else {
				e.logger.Info().Msg("released leadership lock")
			}
			e.setLeader(false)
		}
		err = e.client.Close()
	})
	return err
}

// IsLeader reports whether this instance currently holds the lease.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// LeaderCh receives leadership changes. Changes are dropped while the
// previous one is unread.
func (e *Election) LeaderCh() <-chan bool {
	return e.leaderCh
}

// Leader returns the instance id holding the lease, or "" when nobody does.
func (e *Election) Leader(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get leader: %w", err)
	}
	return id, nil
}

func (e *Election) attempt(ctx context.Context) {
	held, err := e.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("failed to acquire leadership lock")
		}
		// The lease may still be ours but we cannot prove it.
		e.setLeader(false)
		return
	}
	e.setLeader(held)
}

// acquire takes the lease when free and renews it when already ours.
func (e *Election) acquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.config.ElectionKey, e.config.InstanceID, e.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lock: %w", err)
	}
	if ok {
		return true, nil
	}

	current, err := e.client.Get(ctx, e.config.ElectionKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get current leader: %w", err)
	}
	if current != e.config.InstanceID {
		return false, nil
	}
	if err := e.client.Expire(ctx, e.config.ElectionKey, e.config.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	return true, nil
}

func (e *Election) setLeader(leader bool) {
	if e.leader.Swap(leader) == leader {
		return
	}

	id := e.config.InstanceID
	if leader {
		e.logger.Info().Str("instance_id", id).Msg("acquired leadership")
		telemetry.LeaderStatus.WithLabelValues(id).Set(1)
		telemetry.LeaderChangesTotal.WithLabelValues(id, "acquired").Inc()
	} else {
		e.logger.Warn().Str("instance_id", id).Msg("lost leadership")
		telemetry.LeaderStatus.WithLabelValues(id).Set(0)
		telemetry.LeaderChangesTotal.WithLabelValues(id, "lost").Inc()
	}

	select {
	case e.leaderCh <- leader:
	default:
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "slidify.events.",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus fans change notifications out over NATS core subjects.
// Like RedisBus it always serves local subscribers in-process.
type NATSBus struct {
	conn   *nats.Conn
	local  *events.Bus
	nodeID string
	prefix string
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS. Connection failure yields a local-only bus.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) *NATSBus {
	logger = logger.With().Str("component", "eventbus.nats").Logger()
	nb := &NATSBus{
		local:  events.NewBus(),
		nodeID: nodeIDOrRandom(nodeID),
		prefix: cfg.SubjectPrefix,
		logger: logger,
		subs:   make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("slidify-"+nb.nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable, event bus delivering locally only")
		return nb
	}
	nb.conn = conn

	logger.Info().Str("url", cfg.URL).Str("node_id", nb.nodeID).Msg("nats event bus initialized")
	return nb
}

// Subscribe registers a local subscriber and ensures a NATS subscription for the type exists.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, ok := nb.subs[eventType]; ok {
		return sub
	}

	natsSub, err := nb.conn.Subscribe(nb.prefix+string(eventType), func(msg *nats.Msg) {
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			nb.logger.Error().Err(err).Msg("dropping malformed nats event")
			return
		}
		if env.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(eventType, env.Payload)
	})
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats subscribe failed")
		return sub
	}
	nb.subs[eventType] = natsSub
	return sub
}

// Publish delivers locally and forwards to NATS for other instances.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := encodeEnvelope(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("encode event failed")
		return
	}
	if err := nb.conn.Publish(nb.prefix+string(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("nats publish failed")
	}
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	nb.mu.Lock()
	nb.subs = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()
	return nb.conn.Drain()
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package gateway is the typed record and blob store used by every other
// component. Each mutation publishes a change notification keyed so that
// listeners can filter on a slideshow, upload session or user id.
package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slidify/internal/cache"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/telemetry"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden indicates the caller does not own the record.
	ErrForbidden = errors.New("not the record owner")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("record already exists")
	// ErrQuotaExceeded indicates an upload session cannot take the batch.
	ErrQuotaExceeded = errors.New("upload session quota exceeded")
	// ErrSessionExpired indicates an upload session is expired or inactive.
	ErrSessionExpired = errors.New("upload session expired or inactive")
)

// Gateway wraps the database, blob store, cache and change bus.
type Gateway struct {
	db     *gorm.DB
	bus    events.Broker
	blobs  *media.Service
	cache  *cache.Cache
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a gateway. cache may be nil.
func New(db *gorm.DB, bus events.Broker, blobs *media.Service, c *cache.Cache, logger zerolog.Logger) *Gateway {
	if c == nil {
		c = cache.Disabled(logger)
	}
	return &Gateway{
		db:     db,
		bus:    bus,
		blobs:  blobs,
		cache:  c,
		logger: logger.With().Str("component", "gateway").Logger(),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for expiry checks.
func (g *Gateway) SetClock(now func() time.Time) {
	g.now = now
}

// DB exposes the underlying connection for health checks and migrations.
func (g *Gateway) DB() *gorm.DB {
	return g.db
}

// Bus exposes the change-notification broker.
func (g *Gateway) Bus() events.Broker {
	return g.bus
}

func (g *Gateway) publish(eventType events.EventType, op events.Op, key string, record any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(eventType, events.Change(op, key, record))
	telemetry.EventsPublishedTotal.WithLabelValues(string(eventType)).Inc()
}

// translate maps gorm errors to gateway sentinels and wraps everything else.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

// CreateSlideshow validates and inserts a slideshow, assigning an id when empty.
func (g *Gateway) CreateSlideshow(ctx context.Context, show *models.Slideshow) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway", "create_slideshow", attribute.Int("images", len(show.Images)))
	defer func() { telemetry.EndSpan(span, err) }()

	if show.ID == "" {
		show.ID = uuid.NewString()
	}
	if err := show.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(show).Error; err != nil {
		return translate("create slideshow", err)
	}

	telemetry.SlideshowsCreatedTotal.Inc()
	g.publish(events.EventSlideshowChanged, events.OpInsert, show.ID, show)
	return nil
}

// GetSlideshow loads a slideshow by id, reading through the cache.
func (g *Gateway) GetSlideshow(ctx context.Context, id string) (*models.Slideshow, error) {
	if show, ok := g.cache.GetSlideshow(ctx, id); ok {
		return show, nil
	}

	var show models.Slideshow
	if err := g.db.WithContext(ctx).First(&show, "id = ?", id).Error; err != nil {
		return nil, translate("get slideshow", err)
	}
	if err := g.cache.SetSlideshow(ctx, &show); err != nil {
		g.logger.Debug().Err(err).Str("slideshow_id", id).Msg("cache slideshow failed")
	}
	return &show, nil
}

// ListSlideshows returns a user's slideshows, newest first.
func (g *Gateway) ListSlideshows(ctx context.Context, userID string) ([]models.Slideshow, error) {
	var shows []models.Slideshow
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&shows).Error
	if err != nil {
		return nil, translate("list slideshows", err)
	}
	return shows, nil
}

// UpdateSlideshow applies mutate to a slideshow owned by userID and saves it.
func (g *Gateway) UpdateSlideshow(ctx context.Context, id, userID string, mutate func(*models.Slideshow) error) (*models.Slideshow, error) {
	var show models.Slideshow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&show, "id = ?", id).Error; err != nil {
			return err
		}
		if !show.OwnedBy(userID) {
			return ErrForbidden
		}
		if err := mutate(&show); err != nil {
			return err
		}
		show.ID = id
		if err := show.Validate(); err != nil {
			return err
		}
		return tx.Save(&show).Error
	})
	if err != nil {
		if models.IsMalformed(err) || errors.Is(err, ErrForbidden) {
			return nil, err
		}
		return nil, translate("update slideshow", err)
	}

	_ = g.cache.InvalidateSlideshow(ctx, id)
	g.publish(events.EventSlideshowChanged, events.OpUpdate, id, &show)
	return &show, nil
}

// DeleteSlideshow removes a slideshow owned by userID.
func (g *Gateway) DeleteSlideshow(ctx context.Context, id, userID string) error {
	var show models.Slideshow
	if err := g.db.WithContext(ctx).First(&show, "id = ?", id).Error; err != nil {
		return translate("delete slideshow", err)
	}
	if !show.OwnedBy(userID) {
		return ErrForbidden
	}
	if err := g.db.WithContext(ctx).Delete(&models.Slideshow{}, "id = ?", id).Error; err != nil {
		return translate("delete slideshow", err)
	}

	_ = g.cache.InvalidateSlideshow(ctx, id)
	g.publish(events.EventSlideshowChanged, events.OpDelete, id, nil)
	return nil
}

// IncrementViews atomically bumps the view counter and returns the new value.
func (g *Gateway) IncrementViews(ctx context.Context, id string) (int, error) {
	res := g.db.WithContext(ctx).
		Model(&models.Slideshow{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return 0, translate("increment views", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var fresh models.Slideshow
	if err := g.db.WithContext(ctx).First(&fresh, "id = ?", id).Error; err != nil {
		return 0, translate("read views", err)
	}

	telemetry.SlideshowViewsTotal.Inc()
	_ = g.cache.InvalidateSlideshow(ctx, id)
	g.publish(events.EventSlideshowChanged, events.OpUpdate, id, &fresh)
	return fresh.Views, nil
}

// RecordShare stores a share event for a slideshow.
func (g *Gateway) RecordShare(ctx context.Context, ev *models.ShareEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(ev).Error; err != nil {
		return translate("record share", err)
	}
	telemetry.SharesTotal.WithLabelValues(ev.Platform).Inc()
	g.publish(events.EventShareRecorded, events.OpInsert, ev.SlideshowID, ev)
	return nil
}

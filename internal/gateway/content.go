/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gateway

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/models"
)

// ListMusic returns the full music library ordered by title.
func (g *Gateway) ListMusic(ctx context.Context) ([]models.MusicTrack, error) {
	if tracks, ok := g.cache.GetMusic(ctx); ok {
		return tracks, nil
	}
	var tracks []models.MusicTrack
	if err := g.db.WithContext(ctx).Order("title ASC").Find(&tracks).Error; err != nil {
		return nil, translate("list music", err)
	}
	_ = g.cache.SetMusic(ctx, tracks)
	return tracks, nil
}

// GetMusic loads a track by id.
func (g *Gateway) GetMusic(ctx context.Context, id string) (*models.MusicTrack, error) {
	var track models.MusicTrack
	if err := g.db.WithContext(ctx).First(&track, "id = ?", id).Error; err != nil {
		return nil, translate("get music", err)
	}
	return &track, nil
}

// CreateMusic inserts a track.
func (g *Gateway) CreateMusic(ctx context.Context, track *models.MusicTrack) error {
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	if err := track.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(track).Error; err != nil {
		return translate("create music", err)
	}
	_ = g.cache.InvalidateMusic(ctx)
	g.publish(events.EventMusicChanged, events.OpInsert, track.ID, track)
	return nil
}

// RandomTagline returns one active tagline, or ErrNotFound when none exist.
func (g *Gateway) RandomTagline(ctx context.Context) (*models.Tagline, error) {
	lines, ok := g.cache.GetTaglines(ctx)
	if !ok {
		if err := g.db.WithContext(ctx).Where("active = ?", true).Find(&lines).Error; err != nil {
			return nil, translate("list taglines", err)
		}
		_ = g.cache.SetTaglines(ctx, lines)
	}
	if len(lines) == 0 {
		return nil, ErrNotFound
	}
	return &lines[rand.IntN(len(lines))], nil
}

// CreateTagline inserts a tagline.
func (g *Gateway) CreateTagline(ctx context.Context, line *models.Tagline) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if strings.TrimSpace(line.Text) == "" {
		return &models.MalformedRecordError{Collection: "taglines", Field: "text", Reason: "missing"}
	}
	if err := g.db.WithContext(ctx).Create(line).Error; err != nil {
		return translate("create tagline", err)
	}
	_ = g.cache.InvalidateTaglines(ctx)
	return nil
}

// ListShareMessages returns share captions, optionally filtered by platform.
func (g *Gateway) ListShareMessages(ctx context.Context, platform string) ([]models.ShareMessage, error) {
	q := g.db.WithContext(ctx).Order("created_at ASC")
	if platform != "" {
		q = q.Where("platform = ?", platform)
	}
	var msgs []models.ShareMessage
	if err := q.Find(&msgs).Error; err != nil {
		return nil, translate("list share messages", err)
	}
	return msgs, nil
}

// CreateShareMessage inserts a share caption.
func (g *Gateway) CreateShareMessage(ctx context.Context, msg *models.ShareMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if strings.TrimSpace(msg.Text) == "" {
		return &models.MalformedRecordError{Collection: "share_messages", Field: "text", Reason: "missing"}
	}
	if err := g.db.WithContext(ctx).Create(msg).Error; err != nil {
		return translate("create share message", err)
	}
	return nil
}

// CreateFeedback stores visitor feedback.
func (g *Gateway) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(f).Error; err != nil {
		return translate("create feedback", err)
	}
	return nil
}

// JoinWaitlist adds an email to the waitlist. Joining twice is not an error;
// the existing entry is returned.
func (g *Gateway) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, error) {
	entry.Email = strings.ToLower(strings.TrimSpace(entry.Email))
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	err := translate("join waitlist", g.db.WithContext(ctx).Create(entry).Error)
	if errors.Is(err, ErrConflict) {
		var existing models.WaitlistEntry
		if err := g.db.WithContext(ctx).First(&existing, "email = ?", entry.Email).Error; err != nil {
			return nil, translate("join waitlist", err)
		}
		return &existing, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

// CreateUploadSession inserts a session, generating id and token when empty.
func (g *Gateway) CreateUploadSession(ctx context.Context, s *models.UploadSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Token == "" {
		s.Token = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	s.Active = true
	if err := s.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(s).Error; err != nil {
		return translate("create upload session", err)
	}
	g.publish(events.EventUploadSessionChanged, events.OpInsert, s.ID, s)
	return nil
}

// GetUploadSession loads a session by id.
func (g *Gateway) GetUploadSession(ctx context.Context, id string) (*models.UploadSession, error) {
	var s models.UploadSession
	if err := g.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, translate("get upload session", err)
	}
	return &s, nil
}

// GetUploadSessionByToken loads a session by its share token.
func (g *Gateway) GetUploadSessionByToken(ctx context.Context, token string) (*models.UploadSession, error) {
	var s models.UploadSession
	if err := g.db.WithContext(ctx).First(&s, "token = ?", token).Error; err != nil {
		return nil, translate("get upload session", err)
	}
	return &s, nil
}

// ListSessionImages returns the images contributed to a session, oldest first.
func (g *Gateway) ListSessionImages(ctx context.Context, sessionID string) ([]models.SessionImage, error) {
	var images []models.SessionImage
	err := g.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&images).Error
	if err != nil {
		return nil, translate("list session images", err)
	}
	return images, nil
}

// CloseUploadSession deactivates a session owned by userID.
func (g *Gateway) CloseUploadSession(ctx context.Context, id, userID string) error {
	res := g.db.WithContext(ctx).
		Model(&models.UploadSession{}).
		Where("id = ? AND created_by = ?", id, userID).
		Update("active", false)
	if res.Error != nil {
		return translate("close upload session", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	g.publish(events.EventUploadSessionChanged, events.OpUpdate, id, nil)
	return nil
}

// InsertSessionImages records a batch of uploaded images against a session.
// The counter increment is conditional on the session having room for the
// whole batch, so concurrent contributors can never push it past its quota.
func (g *Gateway) InsertSessionImages(ctx context.Context, sessionID string, images []models.SessionImage) (updated *models.UploadSession, err error) {
	ctx, span := telemetry.StartSpan(ctx, "gateway", "insert_session_images",
		attribute.String("session_id", sessionID), attribute.Int("images", len(images)))
	defer func() { telemetry.EndSpan(span, err) }()

	if len(images) == 0 {
		return g.GetUploadSession(ctx, sessionID)
	}
	for i := range images {
		images[i].SessionID = sessionID
		if images[i].ID == "" {
			images[i].ID = uuid.NewString()
		}
		if err := images[i].Validate(); err != nil {
			return nil, err
		}
	}

	now := g.now()
	n := len(images)
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.UploadSession
		if err := tx.First(&s, "id = ?", sessionID).Error; err != nil {
			return err
		}
		if !s.Active || s.Expired(now) {
			return ErrSessionExpired
		}
		res := tx.Model(&models.UploadSession{}).
			Where("id = ? AND active = ? AND current_uploads + ? <= max_uploads", sessionID, true, n).
			UpdateColumn("current_uploads", gorm.Expr("current_uploads + ?", n))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQuotaExceeded
		}
		return tx.Create(&images).Error
	})
	if err != nil {
		if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrQuotaExceeded) {
			return nil, err
		}
		return nil, translate("insert session images", err)
	}

	updated, err = g.GetUploadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	g.publish(events.EventSessionImageChanged, events.OpInsert, sessionID, images)
	g.publish(events.EventUploadSessionChanged, events.OpUpdate, sessionID, updated)
	return updated, nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/models"
)

// CreateUser inserts an account. Emails are stored lower-cased.
func (g *Gateway) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := u.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(u).Error; err != nil {
		return translate("create user", err)
	}
	g.publish(events.EventUserChanged, events.OpInsert, u.ID, u)
	return nil
}

// GetUser loads an account by id.
func (g *Gateway) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := g.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

// GetUserByEmail loads an account by email, case-insensitively.
func (g *Gateway) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := g.db.WithContext(ctx).First(&u, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, translate("get user", err)
	}
	return &u, nil
}

// UpdateUser saves profile and password changes.
func (g *Gateway) UpdateUser(ctx context.Context, u *models.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Save(u).Error; err != nil {
		return translate("update user", err)
	}
	g.publish(events.EventUserChanged, events.OpUpdate, u.ID, u)
	return nil
}

// GetSubscription returns the billing row for a user.
func (g *Gateway) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := g.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error; err != nil {
		return nil, translate("get subscription", err)
	}
	return &sub, nil
}

// UpsertSubscription writes the billing row for a user. Used by the seed
// command and by billing webhooks; the application itself only reads it.
func (g *Gateway) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "plan", "current_period_end", "updated_at"}),
	}).Create(sub).Error
	if err != nil {
		return translate("upsert subscription", err)
	}
	g.publish(events.EventSubscriptionChanged, events.OpUpdate, sub.UserID, sub)
	return nil
}

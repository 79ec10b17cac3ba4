/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/slidify/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		// Accounts and billing
		&models.User{},
		&models.Subscription{},

		// Slideshows and media
		&models.Slideshow{},
		&models.MusicTrack{},

		// Collaborative uploads
		&models.UploadSession{},
		&models.SessionImage{},

		// Sharing and marketing content
		&models.Tagline{},
		&models.ShareMessage{},
		&models.ShareEvent{},
		&models.Feedback{},
		&models.WaitlistEntry{},
	); err != nil {
		return err
	}

	if err := applyPostgresUploadQuotaGuard(database); err != nil {
		return err
	}

	return nil
}

// applyPostgresUploadQuotaGuard keeps current_uploads within [0, max_uploads]
// even for writers that bypass the gateway.
func applyPostgresUploadQuotaGuard(database *gorm.DB) error {
	if database.Dialector.Name() != "postgres" {
		return nil
	}

	stmt := `
ALTER TABLE upload_sessions DROP CONSTRAINT IF EXISTS chk_upload_sessions_quota;
ALTER TABLE upload_sessions ADD CONSTRAINT chk_upload_sessions_quota
  CHECK (current_uploads >= 0 AND current_uploads <= max_uploads);
`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply postgres upload quota guard: %w", err)
	}
	return nil
}

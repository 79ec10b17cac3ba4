/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/slidify/internal/models"
)

// OrphanScanner removes stored images that no slideshow or session image
// references. Aborted batch uploads leave such blobs behind.
type OrphanScanner struct {
	db      *gorm.DB
	storage *FilesystemStorage
	grace   time.Duration
	logger  zerolog.Logger
}

// ScanResult summarizes one sweep.
type ScanResult struct {
	Scanned int
	Removed int
	Bytes   int64
}

// NewOrphanScanner creates a scanner. Files younger than grace are never removed.
func NewOrphanScanner(db *gorm.DB, storage *FilesystemStorage, grace time.Duration, logger zerolog.Logger) *OrphanScanner {
	return &OrphanScanner{
		db:      db,
		storage: storage,
		grace:   grace,
		logger:  logger.With().Str("component", "orphan_scanner").Logger(),
	}
}

// Sweep walks the image bucket and deletes unreferenced files (and their thumbnails).
func (s *OrphanScanner) Sweep(ctx context.Context, now time.Time) (*ScanResult, error) {
	known, err := s.referencedURLs(ctx)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{}
	root := filepath.Join(s.storage.Root(), BucketImages)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		result.Scanned++

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if _, ok := known[s.storage.PublicURL(BucketImages, key)]; ok {
			return nil
		}

		info, err := d.Info()
		if err != nil || now.Sub(info.ModTime()) < s.grace {
			return nil
		}

		if err := s.storage.Delete(ctx, BucketImages, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("remove orphan failed")
			return nil
		}
		thumbKey := strings.TrimSuffix(key, filepath.Ext(key)) + ".jpg"
		_ = s.storage.Delete(ctx, BucketThumbnails, thumbKey)

		result.Removed++
		result.Bytes += info.Size()
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walk image bucket: %w", err)
	}

	if result.Removed > 0 {
		s.logger.Info().
			Int("scanned", result.Scanned).
			Int("removed", result.Removed).
			Int64("bytes", result.Bytes).
			Msg("orphaned images removed")
	}
	return result, nil
}

func (s *OrphanScanner) referencedURLs(ctx context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{})

	var shows []models.Slideshow
	if err := s.db.WithContext(ctx).Select("id", "images").Find(&shows).Error; err != nil {
		return nil, fmt.Errorf("load slideshow images: %w", err)
	}
	for _, show := range shows {
		for _, img := range show.Images {
			known[img] = struct{}{}
		}
	}

	var urls []string
	if err := s.db.WithContext(ctx).Model(&models.SessionImage{}).Pluck("url", &urls).Error; err != nil {
		return nil, fmt.Errorf("load session images: %w", err)
	}
	for _, u := range urls {
		known[u] = struct{}{}
	}
	return known, nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/config"
)

// Buckets used by the application.
const (
	BucketImages     = "images"
	BucketThumbnails = "thumbnails"
	BucketAudio      = "audio"
)

// ErrNotImage is returned when uploaded bytes do not sniff as an image.
var ErrNotImage = errors.New("not an image")

// Storage abstracts the blob store.
type Storage interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	PublicURL(bucket, key string) string
	CheckAccess(ctx context.Context) error
}

// StoredImage describes an uploaded image and its thumbnail.
type StoredImage struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

// Service manages blob storage for slides, thumbnails and audio.
type Service struct {
	storage        Storage
	thumbnailWidth uint
	logger         zerolog.Logger
}

// NewService creates a media service using filesystem or S3 storage based on config.
func NewService(cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	logger = logger.With().Str("component", "media").Logger()

	var storage Storage
	if cfg.S3Bucket != "" {
		s3Storage, err := NewS3Storage(context.Background(), S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			UsePathStyle:    cfg.S3UsePathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 storage: %w", err)
		}
		storage = s3Storage
	} else {
		storage = NewFilesystemStorage(cfg.MediaRoot, cfg.PublicBaseURL+"/media", logger)
	}

	return NewServiceWithStorage(storage, uint(cfg.ThumbnailWidth), logger), nil
}

// NewServiceWithStorage wraps an existing storage backend.
func NewServiceWithStorage(storage Storage, thumbnailWidth uint, logger zerolog.Logger) *Service {
	return &Service{storage: storage, thumbnailWidth: thumbnailWidth, logger: logger}
}

// Upload stores raw bytes at bucket/key.
func (s *Service) Upload(ctx context.Context, bucket, key string, data []byte) error {
	contentType := http.DetectContentType(data)
	if err := s.storage.Upload(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		s.logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("blob upload failed")
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL returns the retrievable URL for bucket/key.
func (s *Service) PublicURL(bucket, key string) string {
	return s.storage.PublicURL(bucket, key)
}

// Delete removes bucket/key.
func (s *Service) Delete(ctx context.Context, bucket, key string) error {
	if err := s.storage.Delete(ctx, bucket, key); err != nil {
		s.logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("blob delete failed")
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// UploadImage validates that data is an image, stores it under owner, and
// stores a thumbnail next to it. A thumbnail failure is logged, not returned.
func (s *Service) UploadImage(ctx context.Context, owner, filename string, data []byte) (*StoredImage, error) {
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%s: %w (%s)", filename, ErrNotImage, contentType)
	}

	key := buildObjectKey(owner, uuid.NewString(), extensionFor(contentType, filename))
	if err := s.storage.Upload(ctx, BucketImages, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("image upload failed")
		return nil, fmt.Errorf("upload image %s: %w", filename, err)
	}

	stored := &StoredImage{
		Key:         key,
		URL:         s.storage.PublicURL(BucketImages, key),
		ContentType: contentType,
		Size:        int64(len(data)),
	}

	if s.thumbnailWidth > 0 {
		thumb, err := Thumbnail(data, s.thumbnailWidth)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("thumbnail skipped")
			return stored, nil
		}
		thumbKey := strings.TrimSuffix(key, path.Ext(key)) + ".jpg"
		if err := s.storage.Upload(ctx, BucketThumbnails, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
			s.logger.Warn().Err(err).Str("key", thumbKey).Msg("thumbnail upload failed")
			return stored, nil
		}
		stored.ThumbnailURL = s.storage.PublicURL(BucketThumbnails, thumbKey)
	}

	return stored, nil
}

// Filesystem returns the local storage backend, or false when blobs live in S3.
func (s *Service) Filesystem() (*FilesystemStorage, bool) {
	fs, ok := s.storage.(*FilesystemStorage)
	return fs, ok
}

// CheckStorageAccess verifies that the storage backend is accessible.
func (s *Service) CheckStorageAccess() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.storage.CheckAccess(ctx)
}

// buildObjectKey shards objects by id prefix: owner/ab/cd/abcd....ext
func buildObjectKey(owner, id, extension string) string {
	if owner == "" {
		owner = "anonymous"
	}
	if len(id) < 4 {
		return path.Join(owner, id+extension)
	}
	return path.Join(owner, id[0:2], id[2:4], id+extension)
}

func extensionFor(contentType, filename string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		return ext
	}
	return ".bin"
}

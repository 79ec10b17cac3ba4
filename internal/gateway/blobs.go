/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package gateway

import (
	"context"
	"errors"

	"github.com/friendsincode/slidify/internal/media"
)

var errNoBlobStore = errors.New("blob store not configured")

// Upload stores bytes at bucket/path.
func (g *Gateway) Upload(ctx context.Context, bucket, path string, data []byte) error {
	if g.blobs == nil {
		return errNoBlobStore
	}
	return g.blobs.Upload(ctx, bucket, path, data)
}

// PublicURL returns the retrievable URL for bucket/path.
func (g *Gateway) PublicURL(bucket, path string) string {
	if g.blobs == nil {
		return ""
	}
	return g.blobs.PublicURL(bucket, path)
}

// UploadImage stores an image (and thumbnail) on behalf of owner.
func (g *Gateway) UploadImage(ctx context.Context, owner, filename string, data []byte) (*media.StoredImage, error) {
	if g.blobs == nil {
		return nil, errNoBlobStore
	}
	return g.blobs.UploadImage(ctx, owner, filename, data)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FilesystemStorage implements Storage using the local filesystem. Buckets
// are top-level directories below rootDir.
type FilesystemStorage struct {
	rootDir string
	baseURL string
	logger  zerolog.Logger
}

// NewFilesystemStorage creates a filesystem-based storage backend. baseURL is
// the URL prefix under which rootDir is served.
func NewFilesystemStorage(rootDir, baseURL string, logger zerolog.Logger) *FilesystemStorage {
	return &FilesystemStorage{
		rootDir: rootDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (fs *FilesystemStorage) resolve(bucket, key string) (string, error) {
	clean := path.Clean("/" + bucket + "/" + key)
	if strings.Contains(key, "..") || clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(fs.rootDir, filepath.FromSlash(clean)), nil
}

// Upload writes the object atomically via a temp file.
func (fs *FilesystemStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	fullPath, err := fs.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	fs.logger.Debug().Str("bucket", bucket).Str("key", key).Msg("filesystem storage: object stored")
	return nil
}

// Delete removes an object. Missing objects are not an error.
func (fs *FilesystemStorage) Delete(_ context.Context, bucket, key string) error {
	fullPath, err := fs.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// PublicURL returns baseURL/bucket/key.
func (fs *FilesystemStorage) PublicURL(bucket, key string) string {
	return fs.baseURL + "/" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// Root returns the directory served under the public base URL.
func (fs *FilesystemStorage) Root() string {
	return fs.rootDir
}

// CheckAccess verifies the storage directory exists and is accessible.
func (fs *FilesystemStorage) CheckAccess(_ context.Context) error {
	info, err := os.Stat(fs.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", fs.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", fs.rootDir)
	}
	return nil
}

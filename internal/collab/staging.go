/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package collab

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/friendsincode/slidify/internal/config"
	"github.com/friendsincode/slidify/internal/telemetry"
)

// Reason explains why a file was left out of a batch.
type Reason string

const (
	ReasonTooLarge   Reason = "too_large"
	ReasonNoSlots    Reason = "no_slots"
	ReasonBatchCount Reason = "batch_count"
	ReasonBatchBytes Reason = "batch_bytes"
	ReasonNotImage   Reason = "not_image"
)

// File is one candidate image.
type File struct {
	Name string
	Data []byte

	seq uint64 // assigned by Flow.Stage
}

// Size returns the file length in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Rejection reports a file that was not staged.
type Rejection struct {
	File   string `json:"file"`
	Reason Reason `json:"reason"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", r.File, r.Reason)
}

// Limits are the ceilings checked before anything is uploaded.
type Limits struct {
	MaxFileBytes  int64
	MaxBatchFiles int
	MaxBatchBytes int64
}

// DefaultLimits returns 10 MB per file, 10 files and 50 MB per batch.
func DefaultLimits() Limits {
	return Limits{
		MaxFileBytes:  10 << 20,
		MaxBatchFiles: 10,
		MaxBatchBytes: 50 << 20,
	}
}

// LimitsFromConfig reads the upload ceilings from process configuration.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxFileBytes:  cfg.MaxUploadSizeBytes(),
		MaxBatchFiles: cfg.MaxBatchFiles,
		MaxBatchBytes: cfg.MaxBatchSizeBytes(),
	}
}

// StageResult splits incoming files into accepted and rejected.
type StageResult struct {
	Accepted []File
	Rejected []Rejection
}

// Stage applies the staging rules to incoming given the files already staged
// and the slots still free on the session (quota minus accepted uploads).
// Checks run per file in order: size, image type, free slots, batch file
// count, batch bytes. Rejected files never block the valid ones.
func Stage(l Limits, freeSlots int, staged, incoming []File) StageResult {
	var res StageResult

	count := len(staged)
	var bytes int64
	for _, f := range staged {
		bytes += f.Size()
	}
	slots := freeSlots - len(staged)

	for _, f := range incoming {
		reason := Reason("")
		switch {
		case f.Size() > l.MaxFileBytes:
			reason = ReasonTooLarge
		case !isImage(f.Data):
			reason = ReasonNotImage
		case slots <= 0:
			reason = ReasonNoSlots
		case count >= l.MaxBatchFiles:
			reason = ReasonBatchCount
		case bytes+f.Size() > l.MaxBatchBytes:
			reason = ReasonBatchBytes
		}
		if reason != "" {
			res.Rejected = append(res.Rejected, Rejection{File: f.Name, Reason: reason})
			telemetry.UploadRejectionsTotal.WithLabelValues(string(reason)).Inc()
			continue
		}
		res.Accepted = append(res.Accepted, f)
		slots--
		count++
		bytes += f.Size()
	}
	return res
}

func isImage(data []byte) bool {
	return len(data) > 0 && strings.HasPrefix(http.DetectContentType(data), "image/")
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package billing

import "github.com/friendsincode/slidify/internal/models"

// Policy holds the per-tier image ceilings.
type Policy struct {
	FreeImages    int
	PremiumImages int
}

// DefaultPolicy returns the stock tier limits.
func DefaultPolicy() Policy {
	return Policy{FreeImages: 15, PremiumImages: 100}
}

// Limits is what a tier may do in the editor.
type Limits struct {
	MaxImages int
	Premium   bool
}

// Limits resolves the limits of a tier.
func (p Policy) Limits(premium bool) Limits {
	if premium {
		return Limits{MaxImages: p.PremiumImages, Premium: true}
	}
	return Limits{MaxImages: p.FreeImages}
}

// CanUseMusic reports whether userID may attach track under these limits.
func (l Limits) CanUseMusic(track *models.MusicTrack, userID string) bool {
	return track != nil && track.VisibleTo(userID, l.Premium)
}

// VisibleMusic filters tracks down to the ones the tier may pick.
func (l Limits) VisibleMusic(tracks []models.MusicTrack, userID string) []models.MusicTrack {
	out := make([]models.MusicTrack, 0, len(tracks))
	for i := range tracks {
		if l.CanUseMusic(&tracks[i], userID) {
			out = append(out, tracks[i])
		}
	}
	return out
}

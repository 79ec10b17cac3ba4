/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"net/url"
	"strings"
	"time"

	"github.com/friendsincode/slidify/internal/models"
)

// EdgeBonus is added to the on-screen time of the first and the last slide.
const EdgeBonus = 1500 * time.Millisecond

// SlideDuration returns how long slide index stays on screen in a sequence
// of count slides. A single slide gets the bonus once.
func SlideDuration(index, count int, perSlide time.Duration) time.Duration {
	if index == 0 || index == count-1 {
		return perSlide + EdgeBonus
	}
	return perSlide
}

// Advance is the auto-advance transition: it returns the next index, or
// ended=true with the index held when the step would wrap to the start.
func Advance(index, count int) (next int, ended bool) {
	if count <= 0 {
		return 0, true
	}
	if index >= count-1 {
		return index, true
	}
	return index + 1, false
}

// Timeline returns the on-screen duration of every slide in show.
func Timeline(show *models.Slideshow) []time.Duration {
	count := len(show.Images)
	out := make([]time.Duration, count)
	for i := range out {
		out[i] = SlideDuration(i, count, show.SlideDuration())
	}
	return out
}

// TotalDuration returns the time one full cycle takes.
func TotalDuration(show *models.Slideshow) time.Duration {
	var total time.Duration
	for _, d := range Timeline(show) {
		total += d
	}
	return total
}

// ShareLink builds the canonical viewer link for a saved slideshow.
func ShareLink(baseURL, id string) string {
	if id == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/?view=" + url.QueryEscape(id)
}

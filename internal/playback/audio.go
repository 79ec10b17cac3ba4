/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// AudioPlayer is the background audio element driven by the engine.
// Errors are reported but never stop slide progression.
type AudioPlayer interface {
	Play() error
	Pause()
	Seek(pos time.Duration) error
	SetLoop(loop bool)
}

// LogAudio is an AudioPlayer that only logs; the terminal presenter uses it.
type LogAudio struct {
	URL    string
	Logger zerolog.Logger

	mu      sync.Mutex
	playing bool
	loop    bool
}

func (a *LogAudio) Play() error {
	a.mu.Lock()
	a.playing = true
	a.mu.Unlock()
	a.Logger.Info().Str("audio", a.URL).Msg("audio playing")
	return nil
}

func (a *LogAudio) Pause() {
	a.mu.Lock()
	a.playing = false
	a.mu.Unlock()
	a.Logger.Info().Str("audio", a.URL).Msg("audio paused")
}

func (a *LogAudio) Seek(pos time.Duration) error {
	a.Logger.Debug().Str("audio", a.URL).Dur("position", pos).Msg("audio seek")
	return nil
}

func (a *LogAudio) SetLoop(loop bool) {
	a.mu.Lock()
	a.loop = loop
	a.mu.Unlock()
}

// Playing reports whether Play was called more recently than Pause.
func (a *LogAudio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playback runs a slideshow: timed slide advancement, audio control,
// presentation modes and end-of-show handling.
package playback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

var (
	ErrInvalidTransition = errors.New("playback: operation not valid in current state")
	ErrNoSlides          = errors.New("playback: slideshow has no slides")
	ErrClosed            = errors.New("playback: engine closed")
)

// State is the engine's position in the playback state machine.
type State string

const (
	StateIntro   State = "intro"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
	StateError   State = "error"
)

// Mode selects how the engine is presented.
type Mode string

const (
	// ModePresentation starts behind the intro overlay.
	ModePresentation Mode = "presentation"
	// ModeEmbedded starts paused inside another page.
	ModeEmbedded Mode = "embedded"
	// ModePreview starts paused and never records views.
	ModePreview Mode = "preview"
)

const (
	defaultAudioGrace = 300 * time.Millisecond
	defaultSettle     = 100 * time.Millisecond
)

// ViewRecorder increments the persisted view counter.
type ViewRecorder interface {
	IncrementViews(ctx context.Context, id string) (int, error)
}

// Loader fetches the backing slideshow record.
type Loader interface {
	GetSlideshow(ctx context.Context, id string) (*models.Slideshow, error)
}

// EndedEvent is emitted when a full cycle completes or Next is pressed on
// the last slide.
type EndedEvent struct {
	SlideshowID string `json:"slideshow_id"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	Link        string `json:"link"`
}

// Options configures an engine.
type Options struct {
	Mode Mode
	// Temporary marks an unsaved draft; it never records views.
	Temporary bool
	BaseURL   string
	Scheduler clock.Scheduler
	Audio     AudioPlayer
	Views     ViewRecorder
	OnEnded   func(EndedEvent)
	OnChange  func(Snapshot)
	Logger    zerolog.Logger

	AudioGrace    time.Duration
	RestartSettle time.Duration
}

// Snapshot is a consistent view of the engine state for rendering.
type Snapshot struct {
	State       State      `json:"state"`
	Mode        Mode       `json:"mode"`
	Index       int        `json:"index"`
	Count       int        `json:"count"`
	Playing     bool       `json:"playing"`
	Intro       bool       `json:"intro"`
	Fullscreen  bool       `json:"fullscreen"`
	Image       string     `json:"image,omitempty"`
	Placeholder bool       `json:"placeholder"`
	Broken      []int      `json:"broken,omitempty"`
	Transition  Transition `json:"transition"`
	Error       string     `json:"error,omitempty"`
}

// Engine owns the ephemeral playback state of one presentation.
type Engine struct {
	show       *models.Slideshow
	opts       Options
	sched      clock.Scheduler
	transition Transition
	logger     zerolog.Logger

	mu         sync.Mutex
	state      State
	index      int
	fullscreen bool
	broken     map[int]struct{}
	timer      clock.Timer
	audioTimer clock.Timer
	gen        uint64
	audioGen   uint64
	viewed     bool
	closed     bool
	errMsg     string
}

// New creates an engine for show.
func New(show *models.Slideshow, opts Options) *Engine {
	if opts.Mode == "" {
		opts.Mode = ModePresentation
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real()
	}
	if opts.AudioGrace <= 0 {
		opts.AudioGrace = defaultAudioGrace
	}
	if opts.RestartSettle <= 0 {
		opts.RestartSettle = defaultSettle
	}

	e := &Engine{
		show:       show,
		opts:       opts,
		sched:      opts.Scheduler,
		transition: LookupTransition(show.Transition),
		logger:     opts.Logger.With().Str("component", "playback").Str("slideshow", show.ID).Logger(),
		broken:     make(map[int]struct{}),
	}

	switch {
	case len(show.Images) == 0:
		e.state = StateError
		e.errMsg = "This slideshow has no slides."
	case opts.Mode == ModePresentation:
		e.state = StateIntro
	default:
		e.state = StatePaused
	}

	if e.hasAudio() {
		e.opts.Audio.SetLoop(show.Loop)
	}
	return e
}

// Load fetches the slideshow id and builds an engine for it. A fetch failure
// yields an engine in the terminal error state; it is never retried.
func Load(ctx context.Context, loader Loader, id string, opts Options) *Engine {
	show, err := loader.GetSlideshow(ctx, id)
	if err != nil {
		msg := "This slideshow could not be loaded. Please try again later."
		if errors.Is(err, gateway.ErrNotFound) {
			msg = "This slideshow does not exist or was deleted."
		}
		opts.Logger.Warn().Err(err).Str("slideshow", id).Msg("slideshow fetch failed")
		return Failed(msg, opts)
	}
	return New(show, opts)
}

// Failed returns an engine in the terminal error state.
func Failed(message string, opts Options) *Engine {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real()
	}
	return &Engine{
		show:       &models.Slideshow{},
		opts:       opts,
		sched:      opts.Scheduler,
		transition: LookupTransition(""),
		logger:     opts.Logger.With().Str("component", "playback").Logger(),
		broken:     make(map[int]struct{}),
		state:      StateError,
		errMsg:     message,
	}
}

// Slideshow returns the record the engine presents.
func (e *Engine) Slideshow() *models.Slideshow {
	return e.show
}

// Start begins or resumes auto-advance. Valid from intro or paused.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state != StateIntro && e.state != StatePaused {
		e.mu.Unlock()
		return ErrInvalidTransition
	}

	e.cancelTimersLocked()
	e.state = StatePlaying
	recordView := !e.viewed && e.canonical()
	if recordView {
		e.viewed = true
	}
	e.scheduleAdvanceLocked()
	if e.hasAudio() {
		gen := e.audioGen
		e.audioTimer = e.sched.AfterFunc(e.opts.AudioGrace, func() { e.playAudio(gen) })
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if recordView {
		e.recordView()
	}
	e.changed(snap)
	return nil
}

// Pause stops auto-advance and audio, keeping the current slide.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	e.cancelTimersLocked()
	e.state = StatePaused
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if e.hasAudio() {
		e.opts.Audio.Pause()
	}
	e.changed(snap)
	return nil
}

// Next steps forward. On the last slide it emits the ended signal and holds
// the index; a playing engine stops as if the cycle had completed.
func (e *Engine) Next() error {
	e.mu.Lock()
	if err := e.steppableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	count := len(e.show.Images)
	if e.index == count-1 {
		if e.state == StatePlaying {
			e.cancelTimersLocked()
			e.state = StateEnded
		}
		ev := e.endedEventLocked()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.ended(ev)
		e.changed(snap)
		return nil
	}

	e.index++
	if e.state == StatePlaying {
		e.scheduleAdvanceLocked()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.changed(snap)
	return nil
}

// Previous steps back, wrapping from the first slide to the last.
func (e *Engine) Previous() error {
	e.mu.Lock()
	if err := e.steppableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}

	count := len(e.show.Images)
	e.index = (e.index - 1 + count) % count
	if e.state == StatePlaying {
		e.scheduleAdvanceLocked()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.changed(snap)
	return nil
}

// Restart rewinds to the first slide and audio position zero, then starts
// again after a short settle delay.
func (e *Engine) Restart() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == StateError {
		e.mu.Unlock()
		return ErrInvalidTransition
	}

	e.cancelTimersLocked()
	e.index = 0
	e.state = StatePaused
	e.gen++
	gen := e.gen
	e.timer = e.sched.AfterFunc(e.opts.RestartSettle, func() { e.settled(gen) })
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if e.hasAudio() {
		e.opts.Audio.Pause()
		if err := e.opts.Audio.Seek(0); err != nil {
			e.logger.Warn().Err(err).Msg("audio rewind failed")
		}
	}
	e.changed(snap)
	return nil
}

// ToggleFullscreen flips the fullscreen flag and returns the new value.
func (e *Engine) ToggleFullscreen() bool {
	e.mu.Lock()
	e.fullscreen = !e.fullscreen
	on := e.fullscreen
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.changed(snap)
	return on
}

// MarkBroken records that slide i failed to load. It reports whether the
// index was newly added; repeated marks are no-ops.
func (e *Engine) MarkBroken(i int) bool {
	e.mu.Lock()
	if i < 0 || i >= len(e.show.Images) {
		e.mu.Unlock()
		return false
	}
	if _, ok := e.broken[i]; ok {
		e.mu.Unlock()
		return false
	}
	e.broken[i] = struct{}{}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Debug().Int("index", i).Msg("slide image broken, using placeholder")
	e.changed(snap)
	return true
}

// IsBroken reports whether slide i renders as a placeholder.
func (e *Engine) IsBroken(i int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.broken[i]
	return ok
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close cancels pending timers and pauses audio. Later operations fail with
// ErrClosed and stale timer callbacks are discarded.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cancelTimersLocked()
	wasPlaying := e.state == StatePlaying
	if wasPlaying {
		e.state = StatePaused
	}
	e.mu.Unlock()

	if e.hasAudio() {
		e.opts.Audio.Pause()
	}
}

func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.timer = nil

	next, ended := Advance(e.index, len(e.show.Images))
	if ended {
		e.state = StateEnded
		ev := e.endedEventLocked()
		snap := e.snapshotLocked()
		e.mu.Unlock()

		telemetry.PlaybackEndedTotal.Inc()
		e.ended(ev)
		e.changed(snap)
		return
	}

	e.index = next
	e.scheduleAdvanceLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.changed(snap)
}

func (e *Engine) settled(gen uint64) {
	e.mu.Lock()
	stale := gen != e.gen || e.state != StatePaused
	e.timer = nil
	e.mu.Unlock()
	if stale {
		return
	}
	if err := e.Start(); err != nil {
		e.logger.Debug().Err(err).Msg("restart start skipped")
	}
}

func (e *Engine) playAudio(gen uint64) {
	e.mu.Lock()
	stale := gen != e.audioGen || e.state != StatePlaying
	e.audioTimer = nil
	e.mu.Unlock()
	if stale {
		return
	}
	if err := e.opts.Audio.Play(); err != nil {
		e.logger.Warn().Err(err).Msg("audio playback failed")
		return
	}

	// A Pause or Restart may have landed while Play was running.
	e.mu.Lock()
	stale = gen != e.audioGen || e.state != StatePlaying
	e.mu.Unlock()
	if stale {
		e.opts.Audio.Pause()
	}
}

func (e *Engine) scheduleAdvanceLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	d := SlideDuration(e.index, len(e.show.Images), e.show.SlideDuration())
	e.timer = e.sched.AfterFunc(d, func() { e.tick(gen) })
}

// cancelTimersLocked stops pending timers and invalidates callbacks already
// in flight.
func (e *Engine) cancelTimersLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.audioTimer != nil {
		e.audioTimer.Stop()
		e.audioTimer = nil
	}
	e.gen++
	e.audioGen++
}

func (e *Engine) steppableLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.state == StateError {
		return ErrInvalidTransition
	}
	if len(e.show.Images) == 0 {
		return ErrNoSlides
	}
	return nil
}

func (e *Engine) canonical() bool {
	return e.opts.Mode != ModePreview && !e.opts.Temporary && e.show.ID != "" && e.opts.Views != nil
}

func (e *Engine) hasAudio() bool {
	return e.opts.Audio != nil && e.show.AudioURL != ""
}

func (e *Engine) recordView() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	views, err := e.opts.Views.IncrementViews(ctx, e.show.ID)
	if err != nil {
		e.logger.Warn().Err(err).Msg("record view failed")
		return
	}
	e.logger.Debug().Int("views", views).Msg("view recorded")
}

func (e *Engine) endedEventLocked() EndedEvent {
	return EndedEvent{
		SlideshowID: e.show.ID,
		Name:        e.show.Name,
		Message:     e.show.Message,
		Link:        ShareLink(e.opts.BaseURL, e.show.ID),
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      e.state,
		Mode:       e.opts.Mode,
		Index:      e.index,
		Count:      len(e.show.Images),
		Playing:    e.state == StatePlaying,
		Intro:      e.state == StateIntro,
		Fullscreen: e.fullscreen,
		Transition: e.transition,
		Error:      e.errMsg,
	}
	if e.index < len(e.show.Images) {
		if _, broken := e.broken[e.index]; broken {
			snap.Placeholder = true
		} else {
			snap.Image = e.show.Images[e.index]
		}
	}
	if len(e.broken) > 0 {
		snap.Broken = make([]int, 0, len(e.broken))
		for i := range e.broken {
			snap.Broken = append(snap.Broken, i)
		}
		sort.Ints(snap.Broken)
	}
	return snap
}

func (e *Engine) ended(ev EndedEvent) {
	e.logger.Info().Str("link", ev.Link).Msg("slideshow ended")
	if e.opts.OnEnded != nil {
		e.opts.OnEnded(ev)
	}
}

func (e *Engine) changed(snap Snapshot) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
}

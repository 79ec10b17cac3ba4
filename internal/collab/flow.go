/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package collab implements the collaborative upload flow: a third party
// stages images against a token-addressed upload session and submits them
// as one all-or-nothing batch.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/clock"
	"github.com/friendsincode/slidify/internal/debounce"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/telemetry"
)

var (
	// ErrSessionClosed is returned when the session is expired, inactive or full.
	ErrSessionClosed = errors.New("upload session closed")
	ErrNothingStaged = errors.New("no files staged")
	ErrSubmitting    = errors.New("a submission is already in progress")
	ErrNotOpen       = errors.New("flow not opened")
)

// Backend is the subset of the gateway the flow talks to.
type Backend interface {
	GetUploadSessionByToken(ctx context.Context, token string) (*models.UploadSession, error)
	UploadImage(ctx context.Context, owner, filename string, data []byte) (*media.StoredImage, error)
	InsertSessionImages(ctx context.Context, sessionID string, images []models.SessionImage) (*models.UploadSession, error)
}

// Config tunes a flow.
type Config struct {
	Limits       Limits
	PollInterval time.Duration
	Debounce     time.Duration
	Workers      int
}

// DefaultConfig returns the stock flow settings.
func DefaultConfig() Config {
	return Config{
		Limits:       DefaultLimits(),
		PollInterval: 30 * time.Second,
		Debounce:     500 * time.Millisecond,
		Workers:      4,
	}
}

// Flow is one contributor's view of an upload session.
type Flow struct {
	backend Backend
	bus     events.Broker
	sched   clock.Scheduler
	cfg     Config
	logger  zerolog.Logger
	pool    pond.Pool

	mu         sync.Mutex
	token      string
	session    *models.UploadSession
	staged     []File
	nextSeq    uint64
	submitting bool
	closed     bool
	stopWatch  func()
	queue      *debounce.Queue[events.Payload]
	pollTimer  clock.Timer
	onChange   func(models.UploadSession)
}

// NewFlow creates a flow. Call Open before staging.
func NewFlow(backend Backend, bus events.Broker, sched clock.Scheduler, cfg Config, logger zerolog.Logger) *Flow {
	if sched == nil {
		sched = clock.Real()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Flow{
		backend: backend,
		bus:     bus,
		sched:   sched,
		cfg:     cfg,
		logger:  logger.With().Str("component", "collab").Logger(),
		pool:    pond.NewPool(cfg.Workers),
	}
}

// OnChange registers fn to receive every refreshed session state.
func (f *Flow) OnChange(fn func(models.UploadSession)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Open resolves token and starts following the session.
func (f *Flow) Open(ctx context.Context, token string) (*models.UploadSession, error) {
	session, err := f.backend.GetUploadSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	f.token = token
	f.session = session
	if f.bus != nil && f.stopWatch == nil {
		f.queue = debounce.New(f.sched, f.cfg.Debounce, f.onNotifications)
		f.stopWatch = events.Watch(f.bus, events.EventUploadSessionChanged, session.ID, f.queue.Push)
	}
	if f.cfg.PollInterval > 0 && f.pollTimer == nil {
		f.pollTimer = f.sched.AfterFunc(f.cfg.PollInterval, f.poll)
	}
	out := *session
	f.mu.Unlock()

	f.logger.Info().Str("session", session.ID).Int("remaining", session.Remaining()).Msg("upload session opened")
	return &out, nil
}

// Session returns the last known session state.
func (f *Flow) Session() (models.UploadSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return models.UploadSession{}, false
	}
	return *f.session, true
}

// Remaining returns free slots after the staged files.
func (f *Flow) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return 0
	}
	if n := f.session.Remaining() - len(f.staged); n > 0 {
		return n
	}
	return 0
}

// Stage validates files and adds the accepted ones to the pending batch.
func (f *Flow) Stage(files ...File) (StageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return StageResult{}, ErrNotOpen
	}
	if !f.session.Open(f.sched.Now()) {
		return StageResult{}, ErrSessionClosed
	}
	res := Stage(f.cfg.Limits, f.session.Remaining(), f.staged, files)
	for i := range res.Accepted {
		f.nextSeq++
		res.Accepted[i].seq = f.nextSeq
	}
	f.staged = append(f.staged, res.Accepted...)
	return res, nil
}

// Staged returns the names of the files waiting to be submitted.
func (f *Flow) Staged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.staged))
	for i, file := range f.staged {
		names[i] = file.Name
	}
	return names
}

// Unstage removes a staged file by name. It refuses while a submit is in
// flight, since the batch already holds the file.
func (f *Flow) Unstage(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return false
	}
	for i, file := range f.staged {
		if file.Name == name {
			f.staged = append(f.staged[:i], f.staged[i+1:]...)
			return true
		}
	}
	return false
}

// Submit uploads every staged file concurrently, then inserts the image
// records as one batch. Any failure aborts the batch before records are
// written and keeps the files staged.
func (f *Flow) Submit(ctx context.Context, uploaderName string) (*models.UploadSession, error) {
	f.mu.Lock()
	switch {
	case f.session == nil:
		f.mu.Unlock()
		return nil, ErrNotOpen
	case f.closed:
		f.mu.Unlock()
		return nil, ErrSessionClosed
	case f.submitting:
		f.mu.Unlock()
		return nil, ErrSubmitting
	case len(f.staged) == 0:
		f.mu.Unlock()
		return nil, ErrNothingStaged
	case !f.session.Open(f.sched.Now()):
		f.mu.Unlock()
		return nil, ErrSessionClosed
	}
	f.submitting = true
	session := *f.session
	files := append([]File(nil), f.staged...)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	started := time.Now()
	images, err := f.uploadAll(ctx, session, files, uploaderName)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("collab", "error").Inc()
		f.logger.Error().Err(err).Str("session", session.ID).Int("files", len(files)).Msg("batch upload failed")
		return nil, fmt.Errorf("upload batch: %w", err)
	}

	updated, err := f.backend.InsertSessionImages(ctx, session.ID, images)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("collab", "error").Inc()
		if errors.Is(err, gateway.ErrQuotaExceeded) || errors.Is(err, gateway.ErrSessionExpired) {
			f.refreshQuietly(ctx)
			return nil, fmt.Errorf("%w: %w", ErrSessionClosed, err)
		}
		return nil, fmt.Errorf("insert session images: %w", err)
	}
	telemetry.UploadsTotal.WithLabelValues("collab", "ok").Add(float64(len(images)))
	telemetry.UploadBatchDuration.WithLabelValues("collab").Observe(time.Since(started).Seconds())

	f.mu.Lock()
	f.staged = withoutSubmitted(f.staged, files)
	f.session = updated
	fn := f.onChange
	out := *updated
	f.mu.Unlock()

	f.logger.Info().Str("session", session.ID).Int("images", len(images)).Int("remaining", updated.Remaining()).Msg("batch submitted")
	if fn != nil {
		fn(out)
	}
	return &out, nil
}

// withoutSubmitted drops the submitted files from staged, matching by stage
// sequence so files staged during the upload survive.
func withoutSubmitted(staged, submitted []File) []File {
	done := make(map[uint64]struct{}, len(submitted))
	for _, file := range submitted {
		done[file.seq] = struct{}{}
	}
	kept := staged[:0:0]
	for _, file := range staged {
		if _, ok := done[file.seq]; !ok {
			kept = append(kept, file)
		}
	}
	return kept
}

func (f *Flow) uploadAll(ctx context.Context, session models.UploadSession, files []File, uploaderName string) ([]models.SessionImage, error) {
	owner := "sessions/" + session.ID
	name := strings.TrimSpace(uploaderName)
	images := make([]models.SessionImage, len(files))

	group := f.pool.NewGroupContext(ctx)
	for i, file := range files {
		group.SubmitErr(func() error {
			stored, err := f.backend.UploadImage(ctx, owner, file.Name, file.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			telemetry.UploadBytesTotal.WithLabelValues("collab").Add(float64(stored.Size))
			images[i] = models.SessionImage{SessionID: session.ID, URL: stored.URL, UploaderName: name}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// Refresh refetches the session.
func (f *Flow) Refresh(ctx context.Context) (*models.UploadSession, error) {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	if token == "" {
		return nil, ErrNotOpen
	}

	session, err := f.backend.GetUploadSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return session, nil
	}
	f.session = session
	fn := f.onChange
	out := *session
	f.mu.Unlock()

	if fn != nil {
		fn(out)
	}
	return &out, nil
}

// Close stops notifications and polling. Safe to call repeatedly.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	stop, queue, timer := f.stopWatch, f.queue, f.pollTimer
	f.stopWatch, f.queue, f.pollTimer = nil, nil, nil
	f.mu.Unlock()

	if stop != nil {
		stop()
	}
	if queue != nil {
		queue.Close()
	}
	if timer != nil {
		timer.Stop()
	}
	_ = f.pool.Stop().Wait()
}

func (f *Flow) onNotifications(batch []events.Payload) {
	if f.busy() {
		f.logger.Debug().Int("notifications", len(batch)).Msg("refresh skipped during submit")
		return
	}
	f.refreshQuietly(context.Background())
}

func (f *Flow) poll() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.pollTimer = f.sched.AfterFunc(f.cfg.PollInterval, f.poll)
	f.mu.Unlock()

	if f.busy() {
		return
	}
	f.refreshQuietly(context.Background())
}

func (f *Flow) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting || f.closed
}

func (f *Flow) refreshQuietly(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := f.Refresh(ctx); err != nil {
		f.logger.Warn().Err(err).Msg("refresh upload session failed")
	}
}

// InviteLink builds the link a contributor opens to reach a session.
func InviteLink(baseURL, token string) string {
	if token == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/?session=" + url.QueryEscape(token)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package editor composes a slideshow draft: image selection and ordering,
// music, timing, preview and link creation.
package editor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/billing"
	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/media"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/playback"
	"github.com/friendsincode/slidify/internal/telemetry"
)

const (
	MinDuration     = 1.0
	MaxDuration     = 10.0
	DefaultDuration = 3.0
)

var (
	ErrIndexOutOfRange = errors.New("image index out of range")
	ErrMusicLocked     = errors.New("music track not available on this plan")
	ErrUploadFailed    = errors.New("upload images failed")
)

// Backend is what the editor needs from the gateway.
type Backend interface {
	UploadImage(ctx context.Context, owner, filename string, data []byte) (*media.StoredImage, error)
	CreateSlideshow(ctx context.Context, show *models.Slideshow) error
	GetMusic(ctx context.Context, id string) (*models.MusicTrack, error)
}

// Identity reports who is editing. auth.Session satisfies it.
type Identity interface {
	UserID() string
}

// Tier reports the editor's subscription tier. billing.Provider satisfies it.
type Tier interface {
	Premium() bool
}

// Image is one slide of the draft: local bytes before upload, a URL after.
type Image struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Data []byte `json:"-"`
}

// Draft is the editable slideshow.
type Draft struct {
	Name       string  `json:"name"`
	Message    string  `json:"message"`
	Images     []Image `json:"images"`
	MusicID    string  `json:"music_id,omitempty"`
	AudioURL   string  `json:"audio_url,omitempty"`
	Duration   float64 `json:"duration"`
	Transition string  `json:"transition"`
	Loop       bool    `json:"loop"`
}

// Options configures a Shell.
type Options struct {
	Policy       billing.Policy
	MaxFileBytes int64
	BaseURL      string
	Workers      int
}

// Link is the result of publishing a draft.
type Link struct {
	Slideshow *models.Slideshow `json:"slideshow"`
	URL       string            `json:"url"`
}

// Shell holds one draft for one editor.
type Shell struct {
	backend  Backend
	identity Identity
	tier     Tier
	opts     Options
	logger   zerolog.Logger
	pool     pond.Pool

	mu    sync.Mutex
	draft Draft
}

// NewShell creates an editor with an empty draft.
func NewShell(backend Backend, identity Identity, tier Tier, opts Options, logger zerolog.Logger) *Shell {
	if opts.Policy == (billing.Policy{}) {
		opts.Policy = billing.DefaultPolicy()
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = collab.DefaultLimits().MaxFileBytes
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Shell{
		backend:  backend,
		identity: identity,
		tier:     tier,
		opts:     opts,
		logger:   logger.With().Str("component", "editor").Logger(),
		pool:     pond.NewPool(opts.Workers),
		draft:    Draft{Duration: DefaultDuration, Transition: playback.DefaultTransition},
	}
}

// Close releases the upload workers.
func (s *Shell) Close() {
	_ = s.pool.Stop().Wait()
}

// Draft returns a copy of the current draft.
func (s *Shell) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.Images = append([]Image(nil), s.draft.Images...)
	return d
}

// Limits returns the limits of the current tier.
func (s *Shell) Limits() billing.Limits {
	return s.opts.Policy.Limits(s.premium())
}

// SetName sets the title.
func (s *Shell) SetName(name string) {
	s.mu.Lock()
	s.draft.Name = strings.TrimSpace(name)
	s.mu.Unlock()
}

// SetMessage sets the closing message.
func (s *Shell) SetMessage(msg string) {
	s.mu.Lock()
	s.draft.Message = strings.TrimSpace(msg)
	s.mu.Unlock()
}

// SetLoop sets whether background audio loops.
func (s *Shell) SetLoop(loop bool) {
	s.mu.Lock()
	s.draft.Loop = loop
	s.mu.Unlock()
}

// AddImages appends images in order. Files over the size ceiling, non-images
// and files past the tier's image limit are rejected individually.
func (s *Shell) AddImages(files ...collab.File) []collab.Rejection {
	limits := collab.Limits{
		MaxFileBytes:  s.opts.MaxFileBytes,
		MaxBatchFiles: math.MaxInt,
		MaxBatchBytes: math.MaxInt64,
	}
	maxImages := s.Limits().MaxImages

	s.mu.Lock()
	defer s.mu.Unlock()
	res := collab.Stage(limits, maxImages-len(s.draft.Images), nil, files)
	for _, f := range res.Accepted {
		s.draft.Images = append(s.draft.Images, Image{Name: f.Name, Data: f.Data})
	}
	return res.Rejected
}

// AddImageURL appends an already hosted image.
func (s *Shell) AddImageURL(name, url string) error {
	maxImages := s.Limits().MaxImages
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draft.Images) >= maxImages {
		return &ValidationError{Field: "images", Message: fmt.Sprintf("at most %d images on this plan", maxImages)}
	}
	s.draft.Images = append(s.draft.Images, Image{Name: name, URL: url})
	return nil
}

// Remove deletes the image at index i.
func (s *Shell) Remove(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.draft.Images) {
		return ErrIndexOutOfRange
	}
	s.draft.Images = append(s.draft.Images[:i], s.draft.Images[i+1:]...)
	return nil
}

// Move reorders the image at from to position to.
func (s *Shell) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.draft.Images)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrIndexOutOfRange
	}
	img := s.draft.Images[from]
	images := append(s.draft.Images[:from:from], s.draft.Images[from+1:]...)
	images = append(images[:to], append([]Image{img}, images[to:]...)...)
	s.draft.Images = images
	return nil
}

// SetDuration sets the per-slide seconds clamped to [1,10] and returns the
// stored value.
func (s *Shell) SetDuration(seconds float64) float64 {
	d := ClampDuration(seconds)
	s.mu.Lock()
	s.draft.Duration = d
	s.mu.Unlock()
	return d
}

// ClampDuration clamps per-slide seconds to the editor range.
func ClampDuration(seconds float64) float64 {
	if math.IsNaN(seconds) {
		return DefaultDuration
	}
	return math.Min(MaxDuration, math.Max(MinDuration, seconds))
}

// SetTransition selects a transition; unknown names resolve to fade.
func (s *Shell) SetTransition(name string) string {
	t := playback.LookupTransition(name).Name
	s.mu.Lock()
	s.draft.Transition = t
	s.mu.Unlock()
	return t
}

// SelectMusic attaches a track; an empty id clears the selection.
func (s *Shell) SelectMusic(ctx context.Context, id string) error {
	if id == "" {
		s.mu.Lock()
		s.draft.MusicID, s.draft.AudioURL = "", ""
		s.mu.Unlock()
		return nil
	}
	track, err := s.backend.GetMusic(ctx, id)
	if err != nil {
		return err
	}
	if !s.Limits().CanUseMusic(track, s.userID()) {
		return ErrMusicLocked
	}
	s.mu.Lock()
	s.draft.MusicID, s.draft.AudioURL = track.ID, track.URL
	s.mu.Unlock()
	return nil
}

// Validate checks the draft locally. It never contacts the backend.
func (s *Shell) Validate() error {
	maxImages := s.Limits().MaxImages
	d := s.Draft()

	var errs ValidationErrors
	if d.Name == "" {
		errs = append(errs, &ValidationError{Field: "name", Message: "give your slideshow a name"})
	}
	switch {
	case len(d.Images) == 0:
		errs = append(errs, &ValidationError{Field: "images", Message: "add at least one image"})
	case len(d.Images) > maxImages:
		errs = append(errs, &ValidationError{Field: "images", Message: fmt.Sprintf("at most %d images on this plan", maxImages)})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Preview builds a temporary engine for the draft. Local images render from
// their file names until uploaded.
func (s *Shell) Preview(opts playback.Options) *playback.Engine {
	d := s.Draft()
	opts.Mode = playback.ModePreview
	opts.Temporary = true
	opts.Views = nil
	return playback.New(d.slideshow(), opts)
}

// CreateLink uploads pending images, writes the slideshow and returns its
// share link. Uploaded URLs are kept on the draft so a retry skips them.
func (s *Shell) CreateLink(ctx context.Context) (link *Link, err error) {
	ctx, span := telemetry.StartSpan(ctx, "editor", "create_link")
	defer func() { telemetry.EndSpan(span, err) }()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	userID := s.userID()
	owner := userID
	if owner == "" {
		owner = "anonymous"
	}

	started := time.Now()
	if err := s.uploadPending(ctx, owner); err != nil {
		telemetry.UploadsTotal.WithLabelValues("editor", "error").Inc()
		s.logger.Error().Err(err).Msg("upload images failed")
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	telemetry.UploadBatchDuration.WithLabelValues("editor").Observe(time.Since(started).Seconds())

	show := s.Draft().slideshow()
	if userID != "" {
		show.UserID = &userID
	}
	if err := s.backend.CreateSlideshow(ctx, show); err != nil {
		s.logger.Error().Err(err).Msg("create slideshow failed")
		return nil, fmt.Errorf("create slideshow: %w", err)
	}

	url := playback.ShareLink(s.opts.BaseURL, show.ID)
	s.logger.Info().Str("slideshow", show.ID).Int("images", len(show.Images)).Msg("share link created")
	return &Link{Slideshow: show, URL: url}, nil
}

func (s *Shell) uploadPending(ctx context.Context, owner string) error {
	d := s.Draft()
	urls := make([]string, len(d.Images))

	group := s.pool.NewGroupContext(ctx)
	pending := 0
	for i, img := range d.Images {
		if img.URL != "" {
			urls[i] = img.URL
			continue
		}
		pending++
		group.SubmitErr(func() error {
			stored, err := s.backend.UploadImage(ctx, owner, img.Name, img.Data)
			if err != nil {
				return fmt.Errorf("%s: %w", img.Name, err)
			}
			telemetry.UploadBytesTotal.WithLabelValues("editor").Add(float64(stored.Size))
			urls[i] = stored.URL
			return nil
		})
	}
	if pending == 0 {
		return nil
	}
	err := group.Wait()

	// Keep whatever landed so a retry only uploads the rest.
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.draft.Images {
		if i < len(urls) && urls[i] != "" && s.draft.Images[i].Name == d.Images[i].Name && s.draft.Images[i].URL == "" {
			s.draft.Images[i].URL = urls[i]
			s.draft.Images[i].Data = nil
		}
	}
	if err != nil {
		return err
	}
	telemetry.UploadsTotal.WithLabelValues("editor", "ok").Add(float64(pending))
	return nil
}

func (d Draft) slideshow() *models.Slideshow {
	images := make([]string, len(d.Images))
	for i, img := range d.Images {
		images[i] = img.URL
		if images[i] == "" {
			images[i] = "local:" + img.Name
		}
	}
	show := &models.Slideshow{
		Name:       d.Name,
		Message:    d.Message,
		Images:     images,
		AudioURL:   d.AudioURL,
		Duration:   d.Duration,
		Transition: d.Transition,
		Loop:       d.Loop,
	}
	if d.MusicID != "" {
		id := d.MusicID
		show.MusicID = &id
	}
	return show
}

func (s *Shell) premium() bool {
	return s.tier != nil && s.tier.Premium()
}

func (s *Shell) userID() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.UserID()
}

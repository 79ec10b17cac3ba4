/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/playback"
)

// EntryKind is the top level view selected by the entry URL.
type EntryKind string

const (
	EntryLanding EntryKind = "landing"
	EntryPayment EntryKind = "payment"
	EntrySession EntryKind = "session"
	EntryView    EntryKind = "view"
	EntryEdit    EntryKind = "edit"
)

// Entry is the resolved view and its argument.
type Entry struct {
	Kind EntryKind
	Arg  string
}

const defaultTagline = "Turn your photos into a slideshow worth sharing."

// ResolveEntry picks the view for the entry query. Precedence is payment,
// session, view, slideshow; an unknown payment value is ignored.
func ResolveEntry(q url.Values) Entry {
	if p := strings.ToLower(strings.TrimSpace(q.Get("payment"))); p == "success" || p == "cancelled" {
		return Entry{Kind: EntryPayment, Arg: p}
	}
	if token := strings.TrimSpace(q.Get("session")); token != "" {
		return Entry{Kind: EntrySession, Arg: token}
	}
	if id := strings.TrimSpace(q.Get("view")); id != "" {
		return Entry{Kind: EntryView, Arg: id}
	}
	if id := strings.TrimSpace(q.Get("slideshow")); id != "" {
		return Entry{Kind: EntryEdit, Arg: id}
	}
	return Entry{Kind: EntryLanding}
}

// Entry serves / and dispatches on the query parameters.
func (h *Handler) Entry(w http.ResponseWriter, r *http.Request) {
	entry := ResolveEntry(r.URL.Query())
	switch entry.Kind {
	case EntryPayment:
		h.paymentPage(w, r, entry.Arg)
	case EntrySession:
		h.sessionPage(w, r, entry.Arg)
	case EntryView:
		h.viewPage(w, r, entry.Arg)
	case EntryEdit:
		h.editPage(w, r, entry.Arg)
	default:
		h.landingPage(w, r)
	}
}

type landingData struct {
	Tagline     string
	Transitions []string
}

func (h *Handler) landingPage(w http.ResponseWriter, r *http.Request) {
	tagline := defaultTagline
	line, err := h.store.RandomTagline(r.Context())
	switch {
	case err == nil:
		tagline = line.Text
	case !errors.Is(err, gateway.ErrNotFound):
		h.logger.Warn().Err(err).Msg("random tagline failed")
	}

	h.Render(w, r, "pages/landing", PageData{
		Title:       "Slidify",
		Description: tagline,
		Data: landingData{
			Tagline:     tagline,
			Transitions: playback.TransitionNames(),
		},
	})
}

func (h *Handler) paymentPage(w http.ResponseWriter, r *http.Request, outcome string) {
	title := "Welcome to Premium"
	if outcome == "cancelled" {
		title = "Checkout cancelled"
	}
	h.Render(w, r, "pages/payment", PageData{
		Title: title,
		Data:  map[string]bool{"Success": outcome == "success"},
	})
}

type viewData struct {
	Mode          playback.Mode
	Slideshow     *models.Slideshow
	Transition    playback.Transition
	Timeline      []float64
	Total         time.Duration
	ShareLink     string
	ShareMessages []models.ShareMessage
}

func (h *Handler) viewPage(w http.ResponseWriter, r *http.Request, id string) {
	show, ok := h.loadSlideshow(w, r, id)
	if !ok {
		return
	}

	messages, err := h.store.ListShareMessages(r.Context(), "")
	if err != nil {
		h.logger.Warn().Err(err).Msg("list share messages failed")
	}

	timeline := playback.Timeline(show)
	seconds := make([]float64, len(timeline))
	for i, d := range timeline {
		seconds[i] = d.Seconds()
	}

	data := PageData{
		Title:       titleOf(show),
		Description: show.Message,
		Data: viewData{
			Mode:          viewMode(r.URL.Query()),
			Slideshow:     show,
			Transition:    playback.LookupTransition(show.Transition),
			Timeline:      seconds,
			Total:         playback.TotalDuration(show),
			ShareLink:     playback.ShareLink(h.baseURL, show.ID),
			ShareMessages: messages,
		},
	}
	if len(show.Images) > 0 {
		data.Image = show.Images[0]
	}
	h.Render(w, r, "pages/view", data)
}

// viewMode is embedded for iframe links and presentation otherwise.
func viewMode(q url.Values) playback.Mode {
	if q.Get("embed") == "1" {
		return playback.ModeEmbedded
	}
	return playback.ModePresentation
}

func (h *Handler) editPage(w http.ResponseWriter, r *http.Request, id string) {
	show, ok := h.loadSlideshow(w, r, id)
	if !ok {
		return
	}
	// Ownership is enforced by the API when the page saves.
	h.Render(w, r, "pages/edit", PageData{
		Title: "Edit " + titleOf(show),
		Data: map[string]any{
			"Slideshow":   show,
			"ShareLink":   playback.ShareLink(h.baseURL, show.ID),
			"Transitions": playback.TransitionNames(),
		},
	})
}

type sessionData struct {
	Session    *models.UploadSession
	Slideshow  *models.Slideshow
	Images     []models.SessionImage
	Remaining  int
	Open       bool
	InviteLink string
	Limits     collab.Limits
}

func (h *Handler) sessionPage(w http.ResponseWriter, r *http.Request, token string) {
	ctx := r.Context()
	session, err := h.store.GetUploadSessionByToken(ctx, token)
	if err != nil {
		h.notFound(w, r, err, "Upload link not found", "This upload link is invalid or has been removed.")
		return
	}

	images, err := h.store.ListSessionImages(ctx, session.ID)
	if err != nil {
		h.logger.Warn().Err(err).Str("session", session.ID).Msg("list session images failed")
	}
	show, err := h.store.GetSlideshow(ctx, session.SlideshowID)
	if err != nil {
		h.logger.Warn().Err(err).Str("slideshow_id", session.SlideshowID).Msg("session slideshow lookup failed")
		show = nil
	}

	h.Render(w, r, "pages/session", PageData{
		Title: "Add your photos",
		Data: sessionData{
			Session:    session,
			Slideshow:  show,
			Images:     images,
			Remaining:  session.Remaining(),
			Open:       session.Open(time.Now()),
			InviteLink: collab.InviteLink(h.baseURL, session.Token),
			Limits:     h.limits,
		},
	})
}

func (h *Handler) loadSlideshow(w http.ResponseWriter, r *http.Request, id string) (*models.Slideshow, bool) {
	show, err := h.store.GetSlideshow(r.Context(), id)
	if err != nil {
		h.notFound(w, r, err, "Slideshow not found", "This slideshow does not exist or has been deleted.")
		return nil, false
	}
	return show, true
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request, err error, title, message string) {
	status := http.StatusNotFound
	if !errors.Is(err, gateway.ErrNotFound) {
		h.logger.Error().Err(err).Str("path", r.URL.String()).Msg("entry lookup failed")
		status = http.StatusInternalServerError
		title, message = "Something went wrong", "Please try again in a moment."
	}
	h.RenderStatus(w, r, status, "pages/error", PageData{
		Title: title,
		Data:  map[string]string{"Message": message},
	})
}

func titleOf(show *models.Slideshow) string {
	if show.Name != "" {
		return show.Name
	}
	return "A Slidify slideshow"
}

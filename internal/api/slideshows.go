/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/editor"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/playback"
)

type slideshowCreateResponse struct {
	Slideshow *models.Slideshow  `json:"slideshow"`
	URL       string             `json:"url"`
	Rejected  []collab.Rejection `json:"rejected,omitempty"`
}

// handleSlideshowCreate accepts a multipart draft: name, message, duration,
// transition, music_id, loop, image files under "images" and already hosted
// images under "image_url". It runs the same editor pipeline as the client.
func (a *API) handleSlideshowCreate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	status := a.tier(r.Context(), userID)
	limits := a.policy.Limits(status.Premium)

	if !a.parseMultipart(w, r, a.limits.MaxFileBytes*int64(limits.MaxImages)) {
		return
	}
	files, err := formFiles(r.MultipartForm, "images")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	who := caller{id: userID, premium: status.Premium}
	shell := editor.NewShell(a.gw, who, who, editor.Options{
		Policy:       a.policy,
		MaxFileBytes: a.limits.MaxFileBytes,
		BaseURL:      a.cfg.PublicBaseURL,
		Workers:      a.cfg.UploadWorkers,
	}, a.logger)
	defer shell.Close()

	shell.SetName(r.FormValue("name"))
	shell.SetMessage(r.FormValue("message"))
	shell.SetTransition(r.FormValue("transition"))
	shell.SetLoop(r.FormValue("loop") == "true")
	if raw := r.FormValue("duration"); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_duration")
			return
		}
		shell.SetDuration(seconds)
	}
	if id := r.FormValue("music_id"); id != "" {
		if err := shell.SelectMusic(r.Context(), id); err != nil {
			a.fail(w, err, "select music failed")
			return
		}
	}

	for i, url := range r.MultipartForm.Value["image_url"] {
		if err := shell.AddImageURL("url-"+strconv.Itoa(i), url); err != nil {
			a.fail(w, err, "add image url failed")
			return
		}
	}
	rejected := shell.AddImages(files...)

	link, err := shell.CreateLink(r.Context())
	if errors.Is(err, editor.ErrUploadFailed) {
		a.logger.Error().Err(err).Msg("create slideshow failed")
		writeError(w, http.StatusBadGateway, "upload_failed")
		return
	}
	if err != nil {
		a.fail(w, err, "create slideshow failed")
		return
	}
	writeJSON(w, http.StatusCreated, slideshowCreateResponse{Slideshow: link.Slideshow, URL: link.URL, Rejected: rejected})
}

func (a *API) handleSlideshowGet(w http.ResponseWriter, r *http.Request) {
	show, err := a.gw.GetSlideshow(r.Context(), chi.URLParam(r, "slideshowID"))
	if err != nil {
		a.fail(w, err, "get slideshow failed")
		return
	}
	timeline := playback.Timeline(show)
	seconds := make([]float64, len(timeline))
	for i, d := range timeline {
		seconds[i] = d.Seconds()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slideshow": show,
		"url":       playback.ShareLink(a.cfg.PublicBaseURL, show.ID),
		"timeline":  seconds,
		"total":     playback.TotalDuration(show).Seconds(),
	})
}

func (a *API) handleSlideshowList(w http.ResponseWriter, r *http.Request) {
	shows, err := a.gw.ListSlideshows(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, err, "list slideshows failed")
		return
	}
	writeJSON(w, http.StatusOK, shows)
}

type slideshowUpdateRequest struct {
	Name       *string  `json:"name"`
	Message    *string  `json:"message"`
	Duration   *float64 `json:"duration"`
	Transition *string  `json:"transition"`
	Loop       *bool    `json:"loop"`
	MusicID    *string  `json:"music_id"`
	Images     []string `json:"images"`
}

func (a *API) handleSlideshowUpdate(w http.ResponseWriter, r *http.Request) {
	var req slideshowUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)
	limits := a.policy.Limits(a.tier(ctx, userID).Premium)

	var track *models.MusicTrack
	if req.MusicID != nil && *req.MusicID != "" {
		t, err := a.gw.GetMusic(ctx, *req.MusicID)
		if err != nil {
			a.fail(w, err, "get music failed")
			return
		}
		if !limits.CanUseMusic(t, userID) {
			writeError(w, http.StatusForbidden, "music_locked")
			return
		}
		track = t
	}
	if req.Images != nil && len(req.Images) > limits.MaxImages {
		a.fail(w, editor.ValidationErrors{{Field: "images", Message: "too many images for this plan"}}, "")
		return
	}

	show, err := a.gw.UpdateSlideshow(ctx, chi.URLParam(r, "slideshowID"), userID, func(s *models.Slideshow) error {
		if req.Name != nil {
			s.Name = strings.TrimSpace(*req.Name)
		}
		if req.Message != nil {
			s.Message = strings.TrimSpace(*req.Message)
		}
		if req.Duration != nil {
			s.Duration = editor.ClampDuration(*req.Duration)
		}
		if req.Transition != nil {
			s.Transition = playback.LookupTransition(*req.Transition).Name
		}
		if req.Loop != nil {
			s.Loop = *req.Loop
		}
		if req.MusicID != nil {
			s.MusicID, s.AudioURL = nil, ""
			if track != nil {
				s.MusicID, s.AudioURL = &track.ID, track.URL
			}
		}
		if req.Images != nil {
			s.Images = req.Images
		}
		return nil
	})
	if err != nil {
		a.fail(w, err, "update slideshow failed")
		return
	}
	writeJSON(w, http.StatusOK, show)
}

func (a *API) handleSlideshowDelete(w http.ResponseWriter, r *http.Request) {
	err := a.gw.DeleteSlideshow(r.Context(), chi.URLParam(r, "slideshowID"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, err, "delete slideshow failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSlideshowView(w http.ResponseWriter, r *http.Request) {
	views, err := a.gw.IncrementViews(r.Context(), chi.URLParam(r, "slideshowID"))
	if err != nil {
		a.fail(w, err, "record view failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"views": views})
}

func (a *API) handleSlideshowShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform string `json:"platform"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	id := chi.URLParam(r, "slideshowID")
	if _, err := a.gw.GetSlideshow(r.Context(), id); err != nil {
		a.fail(w, err, "get slideshow failed")
		return
	}
	ev := &models.ShareEvent{SlideshowID: id, Platform: strings.ToLower(strings.TrimSpace(req.Platform))}
	if err := a.gw.RecordShare(r.Context(), ev); err != nil {
		a.fail(w, err, "record share failed")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/models"
)

const (
	defaultSessionUploads = 20
	defaultSessionTTL     = 72 * time.Hour
	maxSessionTTL         = 30 * 24 * time.Hour
)

type uploadSessionResponse struct {
	Session   *models.UploadSession `json:"session"`
	Images    []models.SessionImage `json:"images,omitempty"`
	Remaining int                   `json:"remaining"`
	Open      bool                  `json:"open"`
	URL       string                `json:"url"`
}

func (a *API) sessionResponse(s *models.UploadSession, images []models.SessionImage) uploadSessionResponse {
	return uploadSessionResponse{
		Session:   s,
		Images:    images,
		Remaining: s.Remaining(),
		Open:      s.Open(time.Now()),
		URL:       collab.InviteLink(a.cfg.PublicBaseURL, s.Token),
	}
}

func (a *API) handleUploadSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlideshowID    string `json:"slideshow_id"`
		MaxUploads     int    `json:"max_uploads"`
		ExpiresInHours int    `json:"expires_in_hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	ctx := r.Context()
	userID := auth.UserIDFromContext(ctx)
	show, err := a.gw.GetSlideshow(ctx, req.SlideshowID)
	if err != nil {
		a.fail(w, err, "get slideshow failed")
		return
	}
	if !show.OwnedBy(userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if req.MaxUploads <= 0 {
		req.MaxUploads = defaultSessionUploads
	}
	ttl := defaultSessionTTL
	if req.ExpiresInHours > 0 {
		ttl = min(time.Duration(req.ExpiresInHours)*time.Hour, maxSessionTTL)
	}

	session := &models.UploadSession{
		SlideshowID: show.ID,
		MaxUploads:  req.MaxUploads,
		ExpiresAt:   time.Now().Add(ttl).UTC(),
		CreatedBy:   userID,
	}
	if err := a.gw.CreateUploadSession(ctx, session); err != nil {
		a.fail(w, err, "create upload session failed")
		return
	}
	a.logger.Info().Str("session", session.ID).Str("slideshow_id", show.ID).Int("max_uploads", session.MaxUploads).Msg("upload session created")
	writeJSON(w, http.StatusCreated, a.sessionResponse(session, nil))
}

func (a *API) handleUploadSessionGet(w http.ResponseWriter, r *http.Request) {
	session, err := a.gw.GetUploadSessionByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		a.fail(w, err, "get upload session failed")
		return
	}
	images, err := a.gw.ListSessionImages(r.Context(), session.ID)
	if err != nil {
		a.fail(w, err, "list session images failed")
		return
	}
	writeJSON(w, http.StatusOK, a.sessionResponse(session, images))
}

type submitResponse struct {
	uploadSessionResponse
	Accepted []string           `json:"accepted"`
	Rejected []collab.Rejection `json:"rejected,omitempty"`
}

// handleUploadSessionSubmit stages the posted files with the contributor
// rules and submits the accepted ones as a single batch.
func (a *API) handleUploadSessionSubmit(w http.ResponseWriter, r *http.Request) {
	if !a.parseMultipart(w, r, a.limits.MaxBatchBytes) {
		return
	}
	files, err := formFiles(r.MultipartForm, "images")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	ctx := r.Context()
	flow := collab.NewFlow(a.gw, nil, nil, collab.Config{
		Limits:  a.limits,
		Workers: a.cfg.UploadWorkers,
	}, a.logger)
	defer flow.Close()

	if _, err := flow.Open(ctx, chi.URLParam(r, "token")); err != nil {
		a.fail(w, err, "open upload session failed")
		return
	}
	staged, err := flow.Stage(files...)
	if err != nil {
		a.fail(w, err, "stage images failed")
		return
	}
	if len(staged.Accepted) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "no_valid_files", "rejected": staged.Rejected})
		return
	}

	accepted := flow.Staged()
	session, err := flow.Submit(ctx, r.FormValue("uploader_name"))
	if err != nil {
		if errors.Is(err, collab.ErrSessionClosed) {
			a.fail(w, err, "")
			return
		}
		a.logger.Error().Err(err).Msg("submit session images failed")
		writeError(w, http.StatusBadGateway, "upload_failed")
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		uploadSessionResponse: a.sessionResponse(session, nil),
		Accepted:              accepted,
		Rejected:              staged.Rejected,
	})
}

func (a *API) handleUploadSessionClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := a.gw.GetUploadSessionByToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		a.fail(w, err, "get upload session failed")
		return
	}
	if err := a.gw.CloseUploadSession(ctx, session.ID, auth.UserIDFromContext(ctx)); err != nil {
		a.fail(w, err, "close upload session failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

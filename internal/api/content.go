/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/billing"
	"github.com/friendsincode/slidify/internal/models"
)

// handleMusicList returns the tracks the caller may pick.
func (a *API) handleMusicList(w http.ResponseWriter, r *http.Request) {
	tracks, err := a.gw.ListMusic(r.Context())
	if err != nil {
		a.fail(w, err, "list music failed")
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	limits := a.policy.Limits(a.tier(r.Context(), userID).Premium)
	writeJSON(w, http.StatusOK, limits.VisibleMusic(tracks, userID))
}

type subscriptionResponse struct {
	billing.Status
	MaxImages int `json:"max_images"`
}

func (a *API) handleSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	status, err := billing.Lookup(r.Context(), a.gw, userID)
	if err != nil {
		a.fail(w, err, "subscription lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, subscriptionResponse{
		Status:    status,
		MaxImages: a.policy.Limits(status.Premium).MaxImages,
	})
}

func (a *API) handleTaglineRandom(w http.ResponseWriter, r *http.Request) {
	line, err := a.gw.RandomTagline(r.Context())
	if err != nil {
		a.fail(w, err, "random tagline failed")
		return
	}
	writeJSON(w, http.StatusOK, line)
}

func (a *API) handleShareMessages(w http.ResponseWriter, r *http.Request) {
	platform := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("platform")))
	msgs, err := a.gw.ListShareMessages(r.Context(), platform)
	if err != nil {
		a.fail(w, err, "list share messages failed")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Message string `json:"message"`
		Rating  int    `json:"rating"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	fb := &models.Feedback{
		Email:   strings.TrimSpace(req.Email),
		Message: strings.TrimSpace(req.Message),
		Rating:  req.Rating,
	}
	if userID := auth.UserIDFromContext(r.Context()); userID != "" {
		fb.UserID = &userID
	}
	if err := a.gw.CreateFeedback(r.Context(), fb); err != nil {
		a.fail(w, err, "store feedback failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": fb.ID})
}

func (a *API) handleWaitlist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	entry, err := a.gw.JoinWaitlist(r.Context(), &models.WaitlistEntry{Email: req.Email})
	if err != nil {
		a.fail(w, err, "join waitlist failed")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

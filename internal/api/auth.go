/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/friendsincode/slidify/internal/auth"
)

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	identity, err := a.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken")
		return
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password")
		return
	case err != nil:
		a.fail(w, err, "sign up failed")
		return
	}
	writeJSON(w, http.StatusCreated, identity)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	identity, err := a.auth.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		a.fail(w, err, "sign in failed")
		return
	}
	writeJSON(w, http.StatusOK, identity)
}

func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := a.auth.SignOut(r.Context(), auth.TokenFromContext(r.Context())); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email_required")
		return
	}

	token, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		a.fail(w, err, "password reset request failed")
		return
	}

	// The response never reveals whether the address exists. Outside
	// development the token is delivered out of band.
	resp := map[string]string{"status": "sent"}
	if token != "" && strings.EqualFold(a.cfg.Environment, "development") {
		resp["reset_token"] = token
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	err := a.auth.ResetPassword(r.Context(), req.Token, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid_token")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password")
	case err != nil:
		a.fail(w, err, "password reset failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) handlePasswordUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current  string `json:"current_password"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	err := a.auth.UpdatePassword(r.Context(), auth.UserIDFromContext(r.Context()), req.Current, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "weak_password")
	case err != nil:
		a.fail(w, err, "password update failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, err := a.auth.Lookup(r.Context(), auth.TokenFromContext(r.Context()))
	if errors.Is(err, auth.ErrInvalidToken) {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	if err != nil {
		a.fail(w, err, "session lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, identity.User)
}

func (a *API) handleMeUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	user, err := a.auth.UpdateProfile(r.Context(), auth.UserIDFromContext(r.Context()), req.DisplayName)
	if err != nil {
		a.fail(w, err, "profile update failed")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/billing"
	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/config"
	"github.com/friendsincode/slidify/internal/db"
	"github.com/friendsincode/slidify/internal/editor"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/version"
)

// API exposes HTTP handlers.
type API struct {
	gw      *gateway.Gateway
	auth    *auth.Provider
	bus     events.Broker
	cfg     *config.Config
	policy  billing.Policy
	limits  collab.Limits
	webhook http.Handler
	logger  zerolog.Logger
}

// New creates the API router wrapper.
func New(gw *gateway.Gateway, provider *auth.Provider, cfg *config.Config, logger zerolog.Logger) *API {
	a := &API{
		gw:     gw,
		auth:   provider,
		bus:    gw.Bus(),
		cfg:    cfg,
		policy: billing.Policy{FreeImages: cfg.FreeImageLimit, PremiumImages: cfg.PremiumImageLimit},
		limits: collab.LimitsFromConfig(cfg),
		logger: logger.With().Str("component", "api").Logger(),
	}
	if a.policy.FreeImages <= 0 || a.policy.PremiumImages <= 0 {
		a.policy = billing.DefaultPolicy()
	}
	if cfg.BillingWebhookSecret != "" {
		a.webhook = billing.NewWebhookHandler(gw, cfg.BillingWebhookSecret, logger)
	}
	return a
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", a.handleSignUp)
			r.Post("/signin", a.handleSignIn)
			r.Post("/password/reset", a.handlePasswordResetRequest)
			r.Post("/password/reset/confirm", a.handlePasswordResetConfirm)

			r.Group(func(pr chi.Router) {
				pr.Use(auth.Middleware(a.auth))
				pr.Post("/signout", a.handleSignOut)
				pr.Post("/password", a.handlePasswordUpdate)
				pr.Get("/me", a.handleMe)
				pr.Patch("/me", a.handleMeUpdate)
			})
		})

		// Public reads and anonymous writes; a valid token attaches the owner.
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalMiddleware(a.auth))

			r.Post("/slideshows", a.handleSlideshowCreate)
			r.Get("/slideshows/{slideshowID}", a.handleSlideshowGet)
			r.Post("/slideshows/{slideshowID}/views", a.handleSlideshowView)
			r.Post("/slideshows/{slideshowID}/shares", a.handleSlideshowShare)

			r.Get("/music", a.handleMusicList)
			r.Get("/taglines/random", a.handleTaglineRandom)
			r.Get("/share-messages", a.handleShareMessages)
			r.Post("/feedback", a.handleFeedback)
			r.Post("/waitlist", a.handleWaitlist)

			r.Get("/upload-sessions/{token}", a.handleUploadSessionGet)
			r.Post("/upload-sessions/{token}/images", a.handleUploadSessionSubmit)

			r.Get("/events", a.handleEvents)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.auth))

			pr.Get("/slideshows", a.handleSlideshowList)
			pr.Patch("/slideshows/{slideshowID}", a.handleSlideshowUpdate)
			pr.Delete("/slideshows/{slideshowID}", a.handleSlideshowDelete)

			pr.Get("/subscription", a.handleSubscription)

			pr.Post("/upload-sessions", a.handleUploadSessionCreate)
			pr.Delete("/upload-sessions/{token}", a.handleUploadSessionClose)
		})

		if a.webhook != nil {
			r.Method(http.MethodPost, "/billing/webhook", a.webhook)
		}
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := a.gw.DB().DB()
	if err == nil {
		err = db.Ping(ctx, sqlDB)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

// tier resolves the caller's billing status. Anonymous callers are free.
func (a *API) tier(ctx context.Context, userID string) billing.Status {
	status, err := billing.Lookup(ctx, a.gw, userID)
	if err != nil {
		a.logger.Warn().Err(err).Str("user_id", userID).Msg("subscription lookup failed, assuming free plan")
		return billing.Status{UserID: userID, Plan: billing.PlanFree}
	}
	return status
}

// caller adapts request identity and tier to the editor's interfaces.
type caller struct {
	id      string
	premium bool
}

func (c caller) UserID() string { return c.id }
func (c caller) Premium() bool  { return c.premium }

// fail maps domain errors to status codes. Unexpected errors are logged.
func (a *API) fail(w http.ResponseWriter, err error, msg string) {
	var rejection collab.Rejection
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, gateway.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, gateway.ErrConflict):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, gateway.ErrQuotaExceeded):
		writeError(w, http.StatusConflict, "quota_exceeded")
	case errors.Is(err, gateway.ErrSessionExpired), errors.Is(err, collab.ErrSessionClosed):
		writeError(w, http.StatusGone, "session_closed")
	case errors.Is(err, editor.ErrMusicLocked):
		writeError(w, http.StatusForbidden, "music_locked")
	case errors.As(err, &rejection):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file_rejected", "rejected": []collab.Rejection{rejection}})
	case editor.IsValidation(err):
		var fields editor.ValidationErrors
		if !errors.As(err, &fields) {
			var one *editor.ValidationError
			errors.As(err, &one)
			fields = editor.ValidationErrors{one}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "fields": fields})
	case models.IsMalformed(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_record", "detail": err.Error()})
	default:
		a.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// parseMultipart bounds the body to one batch plus form overhead.
func (a *API) parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return false
	}
	return true
}

// formFiles reads every file posted under field.
func formFiles(form *multipart.Form, field string) ([]collab.File, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[field]
	files := make([]collab.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, collab.File{Name: filepath.Base(fh.Filename), Data: data})
	}
	return files, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/models"
)

// Webhook header names.
const (
	HeaderSignature = "X-Slidify-Signature"
	HeaderTimestamp = "X-Slidify-Timestamp"
)

const (
	maxWebhookBody   = 64 << 10
	webhookClockSkew = 5 * time.Minute
	signaturePrefix  = "sha256="
)

var (
	ErrBadSignature = errors.New("webhook signature mismatch")
	ErrStaleWebhook = errors.New("webhook timestamp outside tolerance")
)

// Upserter writes billing rows.
type Upserter interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
}

// WebhookEvent is the body posted by the billing provider when a
// subscription changes status.
type WebhookEvent struct {
	UserID           string                    `json:"user_id"`
	Status           models.SubscriptionStatus `json:"status"`
	Plan             string                    `json:"plan"`
	CurrentPeriodEnd *time.Time                `json:"current_period_end,omitempty"`
}

// Sign returns the signature header value for body at timestamp ts.
func Sign(secret string, ts int64, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(body)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// WebhookHandler receives signed subscription status updates and stores them.
type WebhookHandler struct {
	store  Upserter
	secret string
	logger zerolog.Logger
	now    func() time.Time
}

// NewWebhookHandler creates the receiver.
func NewWebhookHandler(store Upserter, secret string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:  store,
		secret: secret,
		logger: logger.With().Str("component", "billing_webhook").Logger(),
		now:    time.Now,
	}
}

// Verify checks the signature and freshness of a delivery.
func (h *WebhookHandler) Verify(signature, timestamp string, body []byte) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrStaleWebhook
	}
	sent := time.Unix(ts, 0)
	if d := h.now().Sub(sent); d > webhookClockSkew || d < -webhookClockSkew {
		return ErrStaleWebhook
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(h.secret, ts, body))) {
		return ErrBadSignature
	}
	return nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil || len(body) > maxWebhookBody {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.Verify(r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp), body); err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected billing webhook")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	sub := &models.Subscription{
		UserID:           ev.UserID,
		Status:           ev.Status,
		Plan:             ev.Plan,
		CurrentPeriodEnd: ev.CurrentPeriodEnd,
	}
	if err := h.store.UpsertSubscription(r.Context(), sub); err != nil {
		if models.IsMalformed(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("user_id", ev.UserID).Msg("store subscription failed")
		http.Error(w, "store failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("user_id", ev.UserID).Str("status", string(ev.Status)).Msg("subscription updated")
	w.WriteHeader(http.StatusNoContent)
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/slidify/internal/auth"
	"github.com/friendsincode/slidify/internal/events"
	"github.com/friendsincode/slidify/internal/telemetry"
)

const (
	eventPingInterval = 15 * time.Second
	eventBuffer       = 64
)

// Record collections anyone may follow by key. Keys are unguessable ids, so a
// caller only sees records it already knows about.
var publicEventTypes = map[events.EventType]bool{
	events.EventSlideshowChanged:     true,
	events.EventMusicChanged:         true,
	events.EventUploadSessionChanged: true,
	events.EventSessionImageChanged:  true,
	events.EventShareRecorded:        true,
}

// Streams keyed by user id; the key is forced to the caller.
var userEventTypes = map[events.EventType]bool{
	events.EventSubscriptionChanged: true,
	events.EventAuthStateChanged:    true,
	events.EventUserChanged:         true,
}

type streamedEvent struct {
	Type    events.EventType `json:"type"`
	Payload events.Payload   `json:"payload"`
}

// handleEvents streams change notifications over a WebSocket. The types query
// parameter selects collections; key narrows them to one record.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	types := allowedEventTypes(parseEventTypes(r.URL.Query().Get("types")), userID, key)
	if len(types) == 0 {
		writeError(w, http.StatusBadRequest, "no_event_types")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.EventStreamClients.Inc()
	defer telemetry.EventStreamClients.Dec()

	// Reads are only used to notice the client going away.
	ctx := conn.CloseRead(r.Context())

	out := make(chan streamedEvent, eventBuffer)
	for _, eventType := range types {
		filter := key
		if userEventTypes[eventType] {
			filter = userID
		}
		stop := events.Watch(a.bus, eventType, filter, func(p events.Payload) {
			select {
			case out <- streamedEvent{Type: eventType, Payload: p}:
			default:
				a.logger.Warn().Str("type", string(eventType)).Msg("event stream client too slow, dropping event")
			}
		})
		defer stop()
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case ev := <-out:
			if err := writeEvent(ctx, conn, ev); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, ev streamedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, data)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

// allowedEventTypes drops unknown types, record streams without a key and user
// streams for anonymous callers. An empty request defaults to the records a
// viewer or contributor follows.
func allowedEventTypes(requested []events.EventType, userID, key string) []events.EventType {
	if len(requested) == 0 {
		requested = []events.EventType{
			events.EventSlideshowChanged,
			events.EventUploadSessionChanged,
			events.EventSessionImageChanged,
		}
	}
	seen := make(map[events.EventType]bool, len(requested))
	out := make([]events.EventType, 0, len(requested))
	for _, t := range requested {
		if seen[t] {
			continue
		}
		seen[t] = true
		if (publicEventTypes[t] && key != "") || (userEventTypes[t] && userID != "") {
			out = append(out, t)
		}
	}
	return out
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes registers the entry pages and static assets on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Handle("/static/*", h.StaticHandler())

	// Favicon - simple SVG frame icon
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><rect x="3" y="6" width="26" height="20" rx="3" fill="#f97316"/><path d="M8 22l6-8 4 5 3-3 4 6z" fill="white"/><circle cx="22" cy="11" r="2" fill="white"/></svg>`))
	})

	r.Get("/", h.Entry)
}

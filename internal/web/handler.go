/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/models"
	"github.com/friendsincode/slidify/internal/playback"
	"github.com/friendsincode/slidify/internal/version"
)

// Store is the read side of the gateway the entry pages need.
type Store interface {
	GetSlideshow(ctx context.Context, id string) (*models.Slideshow, error)
	GetUploadSessionByToken(ctx context.Context, token string) (*models.UploadSession, error)
	ListSessionImages(ctx context.Context, sessionID string) ([]models.SessionImage, error)
	RandomTagline(ctx context.Context) (*models.Tagline, error)
	ListShareMessages(ctx context.Context, platform string) ([]models.ShareMessage, error)
}

// Handler provides the server-rendered entry pages.
type Handler struct {
	store     Store
	baseURL   string
	limits    collab.Limits
	logger    zerolog.Logger
	templates map[string]*template.Template // Each page gets its own template set
}

// PageData holds common data passed to all templates.
type PageData struct {
	Title       string
	Description string
	Image       string // og:image for share previews
	BaseURL     string
	Version     string
	Data        any
}

// NewHandler parses the embedded templates.
func NewHandler(store Store, baseURL string, limits collab.Limits, logger zerolog.Logger) (*Handler, error) {
	h := &Handler{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		limits:  limits,
		logger:  logger.With().Str("component", "web").Logger(),
	}
	if err := h.loadTemplates(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return h, nil
}

func (h *Handler) loadTemplates() error {
	funcMap := template.FuncMap{
		"formatDuration": formatDuration,
		"formatSeconds":  formatSeconds,
		"expiresIn":      expiresIn,
		"jsonMarshal":    jsonMarshal,
		"add":            func(a, b int) int { return a + b },
		"lower":          strings.ToLower,
		"transitions":    playback.TransitionNames,
	}

	h.templates = make(map[string]*template.Template)

	var layoutFiles, pageFiles []string
	err := fs.WalkDir(TemplateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		if strings.HasPrefix(path, "templates/layouts/") {
			layoutFiles = append(layoutFiles, path)
		} else if strings.HasPrefix(path, "templates/pages/") {
			pageFiles = append(pageFiles, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, pagePath := range pageFiles {
		tmpl := template.New("").Funcs(funcMap)
		for _, path := range append(layoutFiles, pagePath) {
			content, err := fs.ReadFile(TemplateFS, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if _, err := tmpl.New(templateName(path)).Parse(string(content)); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		}
		name := templateName(pagePath)
		h.templates[name] = tmpl
		h.logger.Debug().Str("template", name).Msg("loaded template")
	}
	return nil
}

func templateName(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
}

// Render renders a page template with status 200.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, name string, data PageData) {
	h.RenderStatus(w, r, http.StatusOK, name, data)
}

// RenderStatus renders a page template with the given status code.
func (h *Handler) RenderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	data.BaseURL = h.baseURL
	data.Version = version.Version

	tmpl, ok := h.templates[name]
	if !ok {
		h.logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Template not found", http.StatusInternalServerError)
		return
	}

	// Render into a buffer first so a template error does not leave a half page.
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Str("path", r.URL.Path).Msg("template render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

// staticResponseWriter wraps http.ResponseWriter to force correct MIME types
type staticResponseWriter struct {
	http.ResponseWriter
	contentType string
	wroteHeader bool
}

func (w *staticResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader && w.contentType != "" {
		w.Header().Set("Content-Type", w.contentType)
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *staticResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// StaticHandler returns an http.Handler for static files.
func (h *Handler) StaticHandler() http.Handler {
	fsys, _ := fs.Sub(StaticFS, "static")
	fileServer := http.FileServer(http.FS(fsys))
	return http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var contentType string
		switch path := r.URL.Path; {
		case strings.HasSuffix(path, ".css"):
			contentType = "text/css; charset=utf-8"
		case strings.HasSuffix(path, ".js"):
			contentType = "application/javascript; charset=utf-8"
		case strings.HasSuffix(path, ".svg"):
			contentType = "image/svg+xml"
		case strings.HasSuffix(path, ".png"):
			contentType = "image/png"
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		sw := &staticResponseWriter{ResponseWriter: w, contentType: contentType}
		fileServer.ServeHTTP(sw, r)
	}))
}

// Template helper functions

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatSeconds renders a per-slide duration such as 3s or 2.5s.
func formatSeconds(seconds float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", seconds), "0"), ".") + "s"
}

// expiresIn describes how long until t, for session expiry badges.
func expiresIn(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Until(t)
	if diff <= 0 {
		return "expired"
	}
	switch {
	case diff < time.Minute:
		return "in a few seconds"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	}
	return plural(int(diff.Hours()/24), "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "in 1 " + unit
	}
	return fmt.Sprintf("in %d %ss", n, unit)
}

func jsonMarshal(v any) template.JS {
	if v == nil {
		return template.JS("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return template.JS("null")
	}
	return template.JS(b)
}

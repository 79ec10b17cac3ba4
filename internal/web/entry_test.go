package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/slidify/internal/collab"
	"github.com/friendsincode/slidify/internal/gateway"
	"github.com/friendsincode/slidify/internal/models"
)

type fakeStore struct {
	shows    map[string]*models.Slideshow
	sessions map[string]*models.UploadSession
	images   map[string][]models.SessionImage
	taglines []models.Tagline
	messages []models.ShareMessage
	err      error
}

func (s *fakeStore) GetSlideshow(_ context.Context, id string) (*models.Slideshow, error) {
	if s.err != nil {
		return nil, s.err
	}
	show, ok := s.shows[id]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return show, nil
}

func (s *fakeStore) GetUploadSessionByToken(_ context.Context, token string) (*models.UploadSession, error) {
	if s.err != nil {
		return nil, s.err
	}
	session, ok := s.sessions[token]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return session, nil
}

func (s *fakeStore) ListSessionImages(_ context.Context, sessionID string) ([]models.SessionImage, error) {
	return s.images[sessionID], nil
}

func (s *fakeStore) RandomTagline(context.Context) (*models.Tagline, error) {
	if len(s.taglines) == 0 {
		return nil, gateway.ErrNotFound
	}
	return &s.taglines[0], nil
}

func (s *fakeStore) ListShareMessages(context.Context, string) ([]models.ShareMessage, error) {
	return s.messages, nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shows: map[string]*models.Slideshow{
			"show-1": {
				ID:         "show-1",
				Name:       "Lisbon",
				Message:    "Our week away",
				Images:     []string{"https://cdn.test/a.png", "https://cdn.test/b.png", "https://cdn.test/c.png"},
				Duration:   3,
				Transition: "zoom",
				AudioURL:   "https://cdn.test/song.mp3",
			},
		},
		sessions: map[string]*models.UploadSession{
			"open-token": {
				ID: "sess-1", Token: "open-token", SlideshowID: "show-1",
				MaxUploads: 10, CurrentUploads: 4, Active: true,
				ExpiresAt: time.Now().Add(48*time.Hour + time.Minute),
			},
			"full-token": {
				ID: "sess-2", Token: "full-token", SlideshowID: "show-1",
				MaxUploads: 2, CurrentUploads: 2, Active: true,
				ExpiresAt: time.Now().Add(time.Hour),
			},
		},
		images: map[string][]models.SessionImage{
			"sess-1": {{ID: "img-1", SessionID: "sess-1", URL: "https://cdn.test/guest.png", UploaderName: "Ana"}},
		},
		messages: []models.ShareMessage{{Platform: "whatsapp", Text: "Look at this"}},
	}
}

func newTestServer(t *testing.T, store Store) *httptest.Server {
	t.Helper()
	h, err := NewHandler(store, "http://slidify.test/", collab.DefaultLimits(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	r := chi.NewRouter()
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header
}

func TestResolveEntry(t *testing.T) {
	tests := []struct {
		query string
		want  Entry
	}{
		{"", Entry{Kind: EntryLanding}},
		{"payment=success", Entry{Kind: EntryPayment, Arg: "success"}},
		{"payment=CANCELLED", Entry{Kind: EntryPayment, Arg: "cancelled"}},
		{"payment=refund", Entry{Kind: EntryLanding}},
		{"payment=refund&view=abc", Entry{Kind: EntryView, Arg: "abc"}},
		{"session=tok", Entry{Kind: EntrySession, Arg: "tok"}},
		{"view=abc", Entry{Kind: EntryView, Arg: "abc"}},
		{"slideshow=abc", Entry{Kind: EntryEdit, Arg: "abc"}},
		{"view=abc&slideshow=def", Entry{Kind: EntryView, Arg: "abc"}},
		{"session=tok&view=abc", Entry{Kind: EntrySession, Arg: "tok"}},
		{"payment=success&session=tok", Entry{Kind: EntryPayment, Arg: "success"}},
		{"view=%20%20", Entry{Kind: EntryLanding}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("parse query: %v", err)
			}
			if got := ResolveEntry(q); got != tt.want {
				t.Fatalf("ResolveEntry(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestEntryPages(t *testing.T) {
	store := newFakeStore()
	store.taglines = []models.Tagline{{Text: "Slides in seconds", Active: true}}
	srv := newTestServer(t, store)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		contains   []string
		excludes   []string
	}{
		{
			name:       "landing shows tagline",
			path:       "/",
			wantStatus: http.StatusOK,
			contains:   []string{"Slides in seconds", `id="create-form"`, `<option value="zoom"`},
		},
		{
			name:       "viewer",
			path:       "/?view=show-1",
			wantStatus: http.StatusOK,
			contains: []string{
				"Lisbon",
				"https://cdn.test/b.png",
				"http://slidify.test/?view=show-1",
				"[4.5,3,4.5]",
				"0:12",
				"scale-75 opacity-0",
				`data-share="whatsapp"`,
				`<audio id="audio"`,
				`data-mode="presentation"`,
				`id="intro"`,
				`data-action="start"`,
				`id="ended" hidden`,
				`<p id="ended-message">Our week away</p>`,
				`id="ended-link" value="http://slidify.test/?view=show-1"`,
				"Watch again",
			},
		},
		{
			name:       "embedded viewer skips the intro",
			path:       "/?view=show-1&embed=1",
			wantStatus: http.StatusOK,
			contains:   []string{`data-mode="embedded"`, `id="ended" hidden`},
			excludes:   []string{`id="intro"`},
		},
		{
			name:       "viewer missing slideshow",
			path:       "/?view=nope",
			wantStatus: http.StatusNotFound,
			contains:   []string{"Slideshow not found"},
		},
		{
			name:       "edit page",
			path:       "/?slideshow=show-1",
			wantStatus: http.StatusOK,
			contains:   []string{`id="edit-form"`, `data-slideshow="show-1"`, `<option value="zoom" selected>`},
		},
		{
			name:       "open session",
			path:       "/?session=open-token",
			wantStatus: http.StatusOK,
			contains:   []string{`<span id="remaining">6</span> of 10`, "to Lisbon", "https://cdn.test/guest.png", "Ana", "in 2 days"},
			excludes:   []string{"no longer accepting"},
		},
		{
			name:       "full session",
			path:       "/?session=full-token",
			wantStatus: http.StatusOK,
			contains:   []string{"no longer accepting"},
			excludes:   []string{`id="session-form"`},
		},
		{
			name:       "unknown session",
			path:       "/?session=missing",
			wantStatus: http.StatusNotFound,
			contains:   []string{"Upload link not found"},
		},
		{
			name:       "payment success",
			path:       "/?payment=success",
			wantStatus: http.StatusOK,
			contains:   []string{"Welcome to Premium", `id="plan-status"`},
		},
		{
			name:       "payment cancelled",
			path:       "/?payment=cancelled",
			wantStatus: http.StatusOK,
			contains:   []string{"Checkout cancelled", "No charge was made"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, header := get(t, srv, tt.path)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if ct := header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
				t.Fatalf("content type = %q", ct)
			}
			for _, s := range tt.contains {
				if !strings.Contains(body, s) {
					t.Errorf("body missing %q", s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(body, s) {
					t.Errorf("body unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestLandingFallsBackToDefaultTagline(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	status, body, _ := get(t, srv, "/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, defaultTagline) {
		t.Fatalf("landing page missing default tagline")
	}
}

func TestStoreFailureRendersServerError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	srv := newTestServer(t, store)

	status, body, _ := get(t, srv, "/?view=show-1")
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if strings.Contains(body, "connection refused") {
		t.Fatalf("error page leaks internal error")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, newFakeStore())

	tests := []struct {
		path string
		want string
	}{
		{"/static/app.css", "text/css"},
		{"/static/viewer.js", "application/javascript"},
		{"/favicon.ico", "image/svg+xml"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, _, header := get(t, srv, tt.path)
			if status != http.StatusOK {
				t.Fatalf("status = %d", status)
			}
			if ct := header.Get("Content-Type"); !strings.HasPrefix(ct, tt.want) {
				t.Fatalf("content type = %q, want %q", ct, tt.want)
			}
		})
	}
}

func TestViewerScriptFollowsPlaybackRules(t *testing.T) {
	srv := newTestServer(t, newFakeStore())
	status, body, _ := get(t, srv, "/static/viewer.js")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	for _, want := range []string{
		"(index - 1 + slides.length) % slides.length", // previous wraps
		"if (index >= slides.length - 1) {",           // next and auto-advance end on the last slide
		"endedPanel.hidden = false",
		`data.mode === "presentation"`, // views only in canonical mode
	} {
		if !strings.Contains(body, want) {
			t.Errorf("viewer.js missing %q", want)
		}
	}
}

func TestTemplateHelpers(t *testing.T) {
	seconds := []struct {
		in   float64
		want string
	}{
		{3, "3s"},
		{2.5, "2.5s"},
		{10, "10s"},
	}
	for _, tt := range seconds {
		if got := formatSeconds(tt.in); got != tt.want {
			t.Errorf("formatSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	durations := []struct {
		in   time.Duration
		want string
	}{
		{12 * time.Second, "0:12"},
		{90 * time.Second, "1:30"},
		{time.Hour + 5*time.Second, "1:00:05"},
	}
	for _, tt := range durations {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	now := time.Now()
	expiries := []struct {
		in   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-time.Minute), "expired"},
		{now.Add(90 * time.Minute), "in 1 hour"},
		{now.Add(30*time.Minute + 30*time.Second), "in 30 minutes"},
		{now.Add(72*time.Hour + time.Minute), "in 3 days"},
	}
	for _, tt := range expiries {
		if got := expiresIn(tt.in); got != tt.want {
			t.Errorf("expiresIn(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

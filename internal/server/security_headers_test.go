package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSecurityHeadersMiddleware_BaselineHeaders(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/?view=abc", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q, want nosniff", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options=%q, want DENY", got)
	}
	if got := rr.Header().Get("Referrer-Policy"); got != "strict-origin-when-cross-origin" {
		t.Fatalf("Referrer-Policy=%q, want strict-origin-when-cross-origin", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "frame-ancestors 'none'") {
		t.Fatalf("Content-Security-Policy=%q, want frame-ancestors 'none'", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("expected no HSTS on non-HTTPS request, got %q", got)
	}
}

func TestSecurityHeadersMiddleware_SetsHSTSOnHTTPS(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("Strict-Transport-Security=%q, want max-age=31536000; includeSubDomains", got)
	}
}

func TestSecurityHeadersMiddleware_AllowsEmbeddedViewer(t *testing.T) {
	h := securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path  string
		embed bool
	}{
		{"/?view=abc&embed=1", true},
		{"/?view=abc", false},
		{"/?embed=1", false},
		{"/api/v1/slideshows/abc?embed=1", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		xfo := rr.Header().Get("X-Frame-Options")
		csp := rr.Header().Get("Content-Security-Policy")
		if tt.embed {
			if xfo != "" || !strings.Contains(csp, "frame-ancestors *") {
				t.Fatalf("%s X-Frame-Options=%q CSP=%q, want embeddable", tt.path, xfo, csp)
			}
			continue
		}
		if xfo != "DENY" {
			t.Fatalf("%s X-Frame-Options=%q, want DENY", tt.path, xfo)
		}
	}
}

func TestIsUploadPath(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{http.MethodPost, "/api/v1/slideshows", true},
		{http.MethodGet, "/api/v1/slideshows", false},
		{http.MethodPost, "/api/v1/upload-sessions/tok/images", true},
		{http.MethodPost, "/api/v1/upload-sessions", false},
		{http.MethodPost, "/api/v1/slideshows/abc/views", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if got := isUploadPath(req); got != tt.want {
			t.Errorf("isUploadPath(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}

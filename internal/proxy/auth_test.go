package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authedHandler(ignoreAuth bool, key string) http.Handler {
	gate := &AuthGate{IgnoreAuth: ignoreAuth, MasterKey: func() string { return key }}
	return gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMasterKey(t *testing.T) {
	h := authedHandler(false, "k")
	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no token", func(r *http.Request) {}, 401},
		{"bearer match", func(r *http.Request) { r.Header.Set("Authorization", "Bearer k") }, 200},
		{"bare authorization", func(r *http.Request) { r.Header.Set("Authorization", "k") }, 200},
		{"x-api-key match", func(r *http.Request) { r.Header.Set("x-api-key", "k") }, 200},
		{"case differs", func(r *http.Request) { r.Header.Set("Authorization", "Bearer K") }, 401},
		{"wrong key", func(r *http.Request) { r.Header.Set("x-api-key", "nope") }, 401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/messages", nil)
			tc.setup(r)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.status {
				t.Errorf("Expected %d, got %d", tc.status, w.Code)
			}
		})
	}
}

func TestAuthExemptPaths(t *testing.T) {
	h := authedHandler(false, "k")
	for _, path := range []string{"/health", "/metrics", "/health/"} {
		r := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != 200 {
			t.Errorf("Expected %s to skip auth, got %d", path, w.Code)
		}
	}
	r := httptest.NewRequest("OPTIONS", "/v1/messages", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 200 {
		t.Errorf("Expected preflight to skip auth, got %d", w.Code)
	}
}

func TestAuthNoKeyConfigured(t *testing.T) {
	// Worker mode with no key refuses to serve.
	h := authedHandler(false, "")
	r := httptest.NewRequest("POST", "/v1/messages", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != 401 {
		t.Errorf("Expected 401 in worker mode without a key, got %d", w.Code)
	}

	// Local mode passes everything through.
	h = authedHandler(true, "")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/messages", nil))
	if w.Code != 200 {
		t.Errorf("Expected local mode to skip auth, got %d", w.Code)
	}

	// Local mode still enforces a key when one is configured.
	h = authedHandler(true, "k")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/v1/messages", nil))
	if w.Code != 401 {
		t.Errorf("Expected local mode with a key to enforce it, got %d", w.Code)
	}
}

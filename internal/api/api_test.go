package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/perimetra/vulnfeed/internal/config"
	"github.com/perimetra/vulnfeed/internal/dedup"
	"github.com/perimetra/vulnfeed/internal/observability"
)

func testServer(cfg *config.APIConfig, store dedup.Store) *APIServer {
	return NewAPIServer(cfg, store, 90*24*time.Hour, observability.NewLogger("error"))
}

func TestNewAPIServer(t *testing.T) {
	cfg := &config.APIConfig{
		Enabled:  true,
		Port:     8080,
		APIKey:   "",
		ReadOnly: false,
	}
	store := dedup.NewMemoryStore()

	server := testServer(cfg, store)

	if server == nil {
		t.Fatal("Expected server to be created")
	}
	if server.config != cfg {
		t.Error("Expected config to be set")
	}
	if server.store != store {
		t.Error("Expected store to be set")
	}
	if server.router == nil {
		t.Error("Expected router to be initialized")
	}
	if server.server == nil {
		t.Error("Expected HTTP server to be initialized")
	}
}

func TestAuthMiddleware_NoAPIKey(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, Port: 8080}
	server := testServer(cfg, dedup.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/processed", nil)
	w := httptest.NewRecorder()

	handler := server.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, false)

	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAuthMiddleware_WithAPIKey(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, Port: 8080, APIKey: "test-api-key"}
	server := testServer(cfg, dedup.NewMemoryStore())

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"bearer prefix accepted", "Bearer test-api-key", http.StatusOK},
		{"raw token accepted", "test-api-key", http.StatusOK},
		{"wrong key rejected", "Bearer wrong-key", http.StatusUnauthorized},
		{"missing header rejected", "", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/processed", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handler := server.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}, false)
			handler(w, req)

			if w.Code != tc.want {
				t.Errorf("Expected status %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestAuthMiddleware_ReadOnlyBlocksWrites(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, Port: 8080, ReadOnly: true}
	server := testServer(cfg, dedup.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prune", nil)
	w := httptest.NewRecorder()

	handler := server.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, true)
	handler(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 in read-only mode, got %d", w.Code)
	}

	// Reads stay open.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/processed", nil)
	w = httptest.NewRecorder()
	handler = server.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, false)
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected reads allowed in read-only mode, got %d", w.Code)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, Port: 8080}
	server := testServer(cfg, dedup.NewMemoryStore())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/processed", nil)
	w := httptest.NewRecorder()

	handler := server.corsMiddleware(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Expected the preflight short-circuited")
	})
	handler(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS origin header")
	}
}

func TestRootRedirect(t *testing.T) {
	cfg := &config.APIConfig{Enabled: true, Port: 8080}
	server := testServer(cfg, dedup.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected status 301, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/swagger/" {
		t.Errorf("Expected redirect to /swagger/, got %q", loc)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	w = httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown path, got %d", w.Code)
	}
}

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ghlvoice/control-plane/internal/api/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	auth := middleware.NewAPIKeyAuth("")
	if auth.Enabled() {
		t.Error("Expected auth to be disabled with an empty key list")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
	w := httptest.NewRecorder()
	auth.Middleware(okHandler()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Disabled auth: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	auth := middleware.NewAPIKeyAuth("test-key-1, test-key-2")
	if !auth.Enabled() {
		t.Fatal("Expected auth to be enabled")
	}
	handler := auth.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
	req.Header.Set("Authorization", "Bearer test-key-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Valid Bearer key: status = %d, want %d", w.Code, http.StatusOK)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
	req2.Header.Set("X-API-Key", "test-key-2")
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Errorf("Valid X-API-Key: status = %d, want %d", w2.Code, http.StatusOK)
	}
}

func TestAPIKeyAuth_InvalidAndMissingKey(t *testing.T) {
	handler := middleware.NewAPIKeyAuth("valid-key").Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Invalid key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Missing key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIKeyAuth_PublicPaths(t *testing.T) {
	handler := middleware.NewAPIKeyAuth("valid-key").Middleware(okHandler())

	for _, path := range []string{"/health", "/version", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Public path %q: status = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestAPIKeyAuth_SetKeysReplacesSet(t *testing.T) {
	auth := middleware.NewAPIKeyAuth("old-key")
	handler := auth.Middleware(okHandler())

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/a/gate", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	auth.SetKeys("new-key, other-key")
	if got := call("old-key"); got != http.StatusUnauthorized {
		t.Errorf("Replaced key: status = %d, want %d", got, http.StatusUnauthorized)
	}
	if got := call("other-key"); got != http.StatusOK {
		t.Errorf("New key: status = %d, want %d", got, http.StatusOK)
	}

	auth.SetKeys(" , ")
	if auth.Enabled() {
		t.Error("Should be disabled after loading an empty key list")
	}
	if got := call(""); got != http.StatusOK {
		t.Errorf("Disabled auth: status = %d, want %d", got, http.StatusOK)
	}
}

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ghlvoice/control-plane/internal/config"
	"github.com/ghlvoice/control-plane/pkg/server"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:    0,
		Version: "test",
		Governance: config.GovernanceConfig{
			GateThreshold:      60,
			DefaultTokenBudget: 1000,
		},
		Webhooks: config.WebhookConfig{ForwardTimeoutSeconds: 1, ForwardAttempts: 1},
		Audit:    config.AuditConfig{Sinks: []string{"memory"}, OutboxSize: 16},
	}
}

func TestNewWithConfig(t *testing.T) {
	srv, err := server.NewWithConfig(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer srv.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("/metrics should expose Go runtime collectors")
	}
}

func TestNewWithConfig_PolicySeedsBudgets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	policy := "gate_threshold: 75\nbudgets:\n  agent-1: 250\n"
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Governance.PolicyFile = path
	srv, err := server.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer srv.Shutdown(context.Background())

	if got := srv.Governance.Threshold(); got != 75 {
		t.Errorf("Threshold() = %v, want 75", got)
	}
	b, ok := srv.Governance.Budget("agent-1")
	if !ok || b.Limit != 250 {
		t.Errorf("Budget(agent-1) = %+v, %v; want limit 250", b, ok)
	}
}

func TestNewWithConfig_UnknownSink(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Sinks = []string{"memory", "kafka"}
	if _, err := server.NewWithConfig(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown audit sink")
	}
}

func TestNewWithConfig_MissingPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Governance.PolicyFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := server.NewWithConfig(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

func TestReloadAPIKeys(t *testing.T) {
	t.Setenv("GOVERNOR_API_KEYS", "")
	srv, err := server.NewWithConfig(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("NewWithConfig() error = %v", err)
	}
	defer srv.Shutdown(context.Background())

	gate := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents/agent-1/gate", nil)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if got := gate(""); got != http.StatusOK {
		t.Fatalf("before reload: status = %d, want %d", got, http.StatusOK)
	}

	path := filepath.Join(t.TempDir(), "governor.env")
	if err := os.WriteFile(path, []byte("GOVERNOR_API_KEYS=rotated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := srv.ReloadAPIKeys(path); err != nil {
		t.Fatalf("ReloadAPIKeys() error = %v", err)
	}

	if got := gate(""); got != http.StatusUnauthorized {
		t.Errorf("after reload without key: status = %d, want %d", got, http.StatusUnauthorized)
	}
	if got := gate("rotated"); got != http.StatusOK {
		t.Errorf("after reload with key: status = %d, want %d", got, http.StatusOK)
	}
	if srv.Config.Auth.APIKeys != "rotated" {
		t.Errorf("Config.Auth.APIKeys = %q, want %q", srv.Config.Auth.APIKeys, "rotated")
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ghlvoice/control-plane/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GOVERNOR_GATE_THRESHOLD", "")
	t.Setenv("GOVERNOR_AUDIT_SINKS", "")
	t.Setenv("GOVERNOR_AUDIT_RETENTION_HOURS", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg := config.Load()
	if cfg.Governance.GateThreshold != 60 {
		t.Errorf("GateThreshold = %v, want 60", cfg.Governance.GateThreshold)
	}
	if !cfg.Audit.HasSink("memory") {
		t.Errorf("Audit.Sinks = %v, want memory enabled by default", cfg.Audit.Sinks)
	}
	if cfg.Audit.HasSink("postgres") {
		t.Error("postgres sink should be disabled by default")
	}
	if cfg.Audit.RetentionHours != 720 {
		t.Errorf("Audit.RetentionHours = %d, want 720", cfg.Audit.RetentionHours)
	}
	if cfg.Telemetry.SampleRatio != 1 {
		t.Errorf("Telemetry.SampleRatio = %v, want 1", cfg.Telemetry.SampleRatio)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_GATE_THRESHOLD", "72.5")
	t.Setenv("GOVERNOR_AUDIT_SINKS", " Memory, redis ,")
	t.Setenv("GOVERNOR_PORT", "not-a-number")

	cfg := config.Load()
	if cfg.Governance.GateThreshold != 72.5 {
		t.Errorf("GateThreshold = %v, want 72.5", cfg.Governance.GateThreshold)
	}
	if !cfg.Audit.HasSink("memory") || !cfg.Audit.HasSink("redis") {
		t.Errorf("Audit.Sinks = %v, want memory and redis", cfg.Audit.Sinks)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want fallback 8080 for invalid value", cfg.Port)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := config.ParsePolicy([]byte(`
gate_threshold: 65
default_token_budget: 5000
budgets:
  agent-a: 1000
  agent-b: 2500
`))
	if err != nil {
		t.Fatalf("ParsePolicy() error = %v", err)
	}
	if p.GateThreshold != 65 {
		t.Errorf("GateThreshold = %v, want 65", p.GateThreshold)
	}
	if p.Budgets["agent-b"] != 2500 {
		t.Errorf("Budgets[agent-b] = %d, want 2500", p.Budgets["agent-b"])
	}

	gov := config.GovernanceConfig{GateThreshold: 60, DefaultTokenBudget: 100}
	p.Apply(&gov)
	if gov.GateThreshold != 65 || gov.DefaultTokenBudget != 5000 {
		t.Errorf("Apply() = %+v, want threshold 65 and budget 5000", gov)
	}
}

func TestParsePolicy_Invalid(t *testing.T) {
	cases := map[string]string{
		"threshold out of range": "gate_threshold: 140",
		"negative budget":        "budgets:\n  a: -1",
		"not yaml":               "gate_threshold: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := config.ParsePolicy([]byte(doc)); err == nil {
				t.Errorf("ParsePolicy(%q) expected error", doc)
			}
		})
	}
}

func TestLoadPolicy_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("gate_threshold: 50\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p, err := config.LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() error = %v", err)
	}
	if p.GateThreshold != 50 {
		t.Errorf("GateThreshold = %v, want 50", p.GateThreshold)
	}

	if _, err := config.LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadPolicy() on missing file expected error")
	}
}

func TestReloadAuth_EnvFileOverrides(t *testing.T) {
	t.Setenv("GOVERNOR_API_KEYS", "from-process")

	path := filepath.Join(t.TempDir(), "governor.env")
	if err := os.WriteFile(path, []byte("GOVERNOR_API_KEYS=rotated-1,rotated-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	auth, err := config.ReloadAuth(path)
	if err != nil {
		t.Fatalf("ReloadAuth: %v", err)
	}
	if auth.APIKeys != "rotated-1,rotated-2" {
		t.Errorf("APIKeys = %q, want the env file value", auth.APIKeys)
	}
}

func TestReloadAuth_MissingFile(t *testing.T) {
	t.Setenv("GOVERNOR_API_KEYS", "from-process")

	auth, err := config.ReloadAuth(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("ReloadAuth with a missing file: %v", err)
	}
	if auth.APIKeys != "from-process" {
		t.Errorf("APIKeys = %q, want %q", auth.APIKeys, "from-process")
	}
}

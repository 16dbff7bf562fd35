package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.KVBackend != KVMemory {
		t.Errorf("expected default kv_backend %q, got %q", KVMemory, cfg.KVBackend)
	}
	if cfg.Bind != ":8900" {
		t.Errorf("expected default bind %q, got %q", ":8900", cfg.Bind)
	}
	if cfg.RecencyHalfLifeSeconds != 3600 {
		t.Errorf("expected default recency half-life 3600, got %f", cfg.RecencyHalfLifeSeconds)
	}
	if cfg.EvaluationWindowSeconds != 24*60*60 {
		t.Errorf("expected default evaluation window 86400s, got %d", cfg.EvaluationWindowSeconds)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.predictd.yml")

	original := DefaultConfig()
	original.CodeRoot = dir
	original.Bind = ":9001"
	original.KVBackend = KVSQLite
	original.Include = []string{"**/*.go", "**/*.py"}
	original.SavingsSecondsPerToken = 0.01

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.CodeRoot != original.CodeRoot {
		t.Errorf("code_root: got %q, want %q", loaded.CodeRoot, original.CodeRoot)
	}
	if loaded.Bind != original.Bind {
		t.Errorf("bind: got %q, want %q", loaded.Bind, original.Bind)
	}
	if loaded.KVBackend != original.KVBackend {
		t.Errorf("kv_backend: got %q, want %q", loaded.KVBackend, original.KVBackend)
	}
	if loaded.SavingsSecondsPerToken != original.SavingsSecondsPerToken {
		t.Errorf("savings_seconds_per_token: got %f, want %f", loaded.SavingsSecondsPerToken, original.SavingsSecondsPerToken)
	}
	if len(loaded.Include) != len(original.Include) {
		t.Errorf("include length: got %d, want %d", len(loaded.Include), len(original.Include))
	}
	for i, v := range loaded.Include {
		if v != original.Include[i] {
			t.Errorf("include[%d]: got %q, want %q", i, v, original.Include[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.KVBackend != KVMemory {
		t.Errorf("expected default kv_backend, got %q", cfg.KVBackend)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	os.Setenv("PREDICTD_BIND", ":7777")
	defer os.Unsetenv("PREDICTD_BIND")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Bind != ":7777" {
		t.Errorf("env override failed: got %q, want %q", loaded.Bind, ":7777")
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got: %v", err)
	}
}

func TestValidateMissingCodeRoot(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = filepath.Join(t.TempDir(), "does-not-exist")
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing code_root")
	}
}

func TestValidateEmptyBind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = t.TempDir()
	cfg.Bind = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for empty bind")
	}
}

func TestValidateInvalidKVBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = t.TempDir()
	cfg.KVBackend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid kv_backend")
	}
}

func TestValidateNonPositiveHalfLife(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = t.TempDir()
	cfg.RecencyHalfLifeSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for non-positive half-life")
	}
}

func TestValidateNegativeSavings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CodeRoot = t.TempDir()
	cfg.SavingsSecondsPerToken = -0.1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative savings_seconds_per_token")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if got, want := cfg.EvaluationWindow().Seconds(), 86400.0; got != want {
		t.Errorf("EvaluationWindow() = %vs, want %vs", got, want)
	}
	if got, want := cfg.PredictionTTL().Seconds(), 86400.0+3600.0; got != want {
		t.Errorf("PredictionTTL() = %vs, want %vs", got, want)
	}
	if got, want := cfg.ContextCacheTTL().Seconds(), 3600.0; got != want {
		t.Errorf("ContextCacheTTL() = %vs, want %vs", got, want)
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"**/*.go", []string{"**/*.go"}},
		{"", nil},
		{"  ,  , ", nil},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.input)
		if len(got) != len(tt.want) {
			t.Errorf("splitAndTrim(%q) len = %d, want %d", tt.input, len(got), len(tt.want))
			continue
		}
		for i, v := range got {
			if v != tt.want[i] {
				t.Errorf("splitAndTrim(%q)[%d] = %q, want %q", tt.input, i, v, tt.want[i])
			}
		}
	}
}

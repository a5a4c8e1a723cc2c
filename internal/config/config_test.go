package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_NoPlatformEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Platforms.Telegram.Enabled = false
	cfg.Platforms.Bale.Enabled = false
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error when every platform is disabled")
	}
}

func TestValidate_MissingCloudBase(t *testing.T) {
	cfg := Defaults()
	cfg.AI.CloudBase = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty ai.cloudBase")
	}
}

func TestValidate_RelayBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Relay.MaxConcurrentUpdates = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentUpdates=0")
	}

	cfg = Defaults()
	cfg.Relay.FlushThreshold = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for flushThreshold=0")
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.AI.CloudBase = "http://ai.internal:11434"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.AI.CloudBase != "http://ai.internal:11434" {
		t.Errorf("cloudBase = %q, round trip lost the value", loaded.AI.CloudBase)
	}
	if loaded.Server.Port != original.Server.Port {
		t.Errorf("port = %d, want %d", loaded.Server.Port, original.Server.Port)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw := `
general:
  logLevel: debug
server:
  port: 9000
ai:
  cloudBase: http://ai:11434
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.General.LogLevel != "debug" || cfg.Server.Port != 9000 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	// Unset sections keep their defaults.
	if cfg.Relay.MaxConcurrentUpdates != 16 {
		t.Errorf("maxConcurrentUpdates = %d, defaults lost", cfg.Relay.MaxConcurrentUpdates)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte("{broken"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for broken JSON")
	}
}

// --- Env expansion ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RELAY_TEST_KEY", "secret-123")

	out := ExpandEnvVars(`{"apiKey": "${RELAY_TEST_KEY}"}`)
	if !strings.Contains(out, "secret-123") {
		t.Errorf("out = %q, env var not expanded", out)
	}
}

func TestExpandEnvVars_Default(t *testing.T) {
	os.Unsetenv("RELAY_TEST_UNSET")

	out := ExpandEnvVars(`${RELAY_TEST_UNSET:-fallback}`)
	if out != "fallback" {
		t.Errorf("out = %q, want fallback", out)
	}
}

func TestExpandEnvVars_NoDefaultKeepsLiteral(t *testing.T) {
	os.Unsetenv("RELAY_TEST_UNSET")

	out := ExpandEnvVars(`${RELAY_TEST_UNSET}`)
	if out != "${RELAY_TEST_UNSET}" {
		t.Errorf("out = %q, unresolved var should stay literal", out)
	}
}

func TestLoad_ExpandsEnvInFile(t *testing.T) {
	t.Setenv("RELAY_TEST_BASE", "http://from-env:11434")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{"ai": {"cloudBase": "${RELAY_TEST_BASE}", "idleTimeoutSeconds": 50}}`
	os.WriteFile(path, []byte(raw), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.CloudBase != "http://from-env:11434" {
		t.Errorf("cloudBase = %q", cfg.AI.CloudBase)
	}
}

// --- Accessors ---

func TestGetByPath(t *testing.T) {
	cfg := Defaults()

	v, err := GetByPath(cfg, "server.port")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.(float64) != 8080 {
		t.Errorf("server.port = %v, want 8080", v)
	}

	if _, err := GetByPath(cfg, "server.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "server.port", "9090"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}

	if err := SetByPath(cfg, "metrics.enabled", "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics.enabled not set")
	}
}

func TestSanitize_MasksAPIKey(t *testing.T) {
	cfg := Defaults()
	cfg.AI.APIKey = "sk-verysecretvalue1234"

	clean := Sanitize(cfg)
	if clean.AI.APIKey == cfg.AI.APIKey {
		t.Error("api key not masked")
	}
	if !strings.Contains(clean.AI.APIKey, "****") {
		t.Errorf("masked key = %q", clean.AI.APIKey)
	}
	// Original untouched.
	if cfg.AI.APIKey != "sk-verysecretvalue1234" {
		t.Error("sanitize mutated the original config")
	}
}

func TestListPaths(t *testing.T) {
	paths := ListPaths(Defaults())
	if _, ok := paths["server.port"]; !ok {
		t.Error("server.port missing from path list")
	}
	if _, ok := paths["ai.cloudBase"]; !ok {
		t.Error("ai.cloudBase missing from path list")
	}
}

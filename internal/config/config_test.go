package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromPath_Defaults(t *testing.T) {
	t.Setenv("CHASSIS_JWT_SECRET", "env-secret")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Server.APIPrefix != "/api/v1" {
		t.Errorf("api prefix = %q", cfg.Server.APIPrefix)
	}
	if cfg.Scrambler.Secret != "env-secret" {
		t.Errorf("secret = %q, want env override", cfg.Scrambler.Secret)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestLoadFromPath_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chassis.yaml")
	body := `
server:
  port: 9000
  api_prefix: /gateway
  server_tag: edge-1
languages:
  supported: [en, ru]
  default: ru
scrambler:
  secret: file-secret
  access_expired_at: 15
redis:
  addr: redis:6379
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.APIPrefix != "/gateway" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.ServerTag != "edge-1" {
		t.Errorf("server tag = %q", cfg.Server.ServerTag)
	}
	if cfg.Languages.Default != "ru" || len(cfg.Languages.Supported) != 2 {
		t.Errorf("languages = %+v", cfg.Languages)
	}
	if cfg.Scrambler.Secret != "file-secret" || cfg.Scrambler.AccessExpiredAtMin != 15 {
		t.Errorf("scrambler = %+v", cfg.Scrambler)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	t.Setenv("CHASSIS_JWT_SECRET", "s")

	dir := t.TempDir()
	path := filepath.Join(dir, "chassis.yaml")
	if err := os.WriteFile(path, []byte("languages:\n  default: fr\n  supported: [en]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Fatal("default language outside supported list should fail")
	}
}

func TestLoadFromPath_MissingSecret(t *testing.T) {
	t.Setenv("CHASSIS_JWT_SECRET", "")

	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing secret should fail")
	}
}

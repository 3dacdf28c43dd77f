package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
languages:
  installed: ["en", "fr"]
  default: "fr"
federation:
  enabled: true
  timeout: 1500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Languages.Default != "fr" {
		t.Errorf("default language: got %s", cfg.Languages.Default)
	}
	if cfg.Federation.Timeout != 1500*time.Millisecond {
		t.Errorf("federation timeout: got %v", cfg.Federation.Timeout)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_defaultLanguageMustBeInstalled(t *testing.T) {
	path := writeConfig(t, `
languages:
  installed: ["en"]
  default: "de"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for uninstalled default language")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/catalog.db"
  pods_dir: "./data/pods"
federation:
  peers_file: "./known_instances.txt"
watch:
  directories: ["./inbox"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "catalog.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "pods"); cfg.Storage.PodsDir != want {
		t.Errorf("pods_dir = %s, want %s", cfg.Storage.PodsDir, want)
	}
	if want := filepath.Join(dir, "known_instances.txt"); cfg.Federation.PeersFile != want {
		t.Errorf("peers_file = %s, want %s", cfg.Federation.PeersFile, want)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories: got %v", cfg.Watch.Directories)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Languages.Default != "en" {
		t.Errorf("default language: got %s", cfg.Languages.Default)
	}
	if cfg.Vectorizer.LogprobPower != 5 {
		t.Errorf("logprob power: got %v", cfg.Vectorizer.LogprobPower)
	}
	if cfg.Search.MaxPods != 3 || cfg.Search.MaxResults != 50 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Search.LexicalBonus != 10.0 || cfg.Search.ExpansionWeight != 0.5 {
		t.Errorf("scoring defaults: %+v", cfg.Search)
	}
	if cfg.Search.MaxPerHost != 0 {
		t.Errorf("per-host cap should be off by default, got %d", cfg.Search.MaxPerHost)
	}
	if cfg.Federation.Timeout != 3*time.Second {
		t.Errorf("federation timeout: got %v", cfg.Federation.Timeout)
	}
	if len(cfg.Watch.Extensions) != 5 || cfg.Watch.Extensions[4] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/hearth/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "hearth.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Name != "Kotakee" {
		t.Errorf("server.name: got %q, want Kotakee", cfg.Server.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "open") {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestLoad_InvalidWrapsPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: chatty\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error mentioning %q, got %v", path, err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Listen.MaxAttempts = 4
	cfg.Speak.WorkerCommand = []string{"custom-worker"}
	config.ApplyDefaults(cfg)
	if cfg.Listen.MaxAttempts != 4 {
		t.Errorf("max_attempts: got %d, want 4", cfg.Listen.MaxAttempts)
	}
	if cfg.Speak.WorkerCommand[0] != "custom-worker" {
		t.Errorf("worker_command: got %v", cfg.Speak.WorkerCommand)
	}
	if cfg.Server.Name != "Hearth" {
		t.Errorf("server.name default: got %q", cfg.Server.Name)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen.Online.Name != "openai" || cfg.Listen.Offline.Name != "whisper-native" {
		t.Errorf("listen backends: got %q / %q", cfg.Listen.Online.Name, cfg.Listen.Offline.Name)
	}
	if len(cfg.Plugins.Active) != 2 {
		t.Errorf("plugins.active: got %d, want 2", len(cfg.Plugins.Active))
	}
}

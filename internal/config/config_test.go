package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/hearth/internal/config"
	"github.com/MrWong99/hearth/pkg/provider/emotion"
	emotionmock "github.com/MrWong99/hearth/pkg/provider/emotion/mock"
	"github.com/MrWong99/hearth/pkg/provider/stt"
	sttmock "github.com/MrWong99/hearth/pkg/provider/stt/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: console
  name: Kotakee

speak:
  worker_command: ["hearth-ttsworker", "--voice", "en-us"]
  worker_secret: s3cret
  sounds:
    chime: assets/hotword.wav
    timer: assets/timer.mp3
  emotion:
    classifier:
      name: openai
      api_key: sk-test
    player: ["mpv", "--fs"]
    media:
      joy: media/joy.mp4

listen:
  backend: offline
  pause_threshold: 800ms
  max_attempts: 3
  online:
    name: whisper
    base_url: http://localhost:8081
  offline:
    name: whisper-native
    options:
      model_path: models/ggml-base.en.bin
  led:
    room: 3
    action: 7

hotword:
  phrases: ["hey kotakee"]

scheduler:
  tick: 250ms
  startup: ["./timer/timer.Timer"]

plugins:
  dir: ./modules
  active:
    - ./home_automation/home_automation.HomeAutomation
    - ./simple_utilities/simple_utilities.SimpleUtilities

home_server:
  base_url: http://192.168.0.197:8080
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.LogFormat != config.LogFormatConsole {
		t.Errorf("server.log_format: got %q, want console", cfg.Server.LogFormat)
	}
	if got := strings.Join(cfg.Speak.WorkerCommand, " "); got != "hearth-ttsworker --voice en-us" {
		t.Errorf("speak.worker_command: got %q", got)
	}
	if !cfg.Speak.Emotion.Enabled() {
		t.Error("speak.emotion should be enabled")
	}
	if cfg.Listen.Backend != config.BackendOffline {
		t.Errorf("listen.backend: got %q, want offline", cfg.Listen.Backend)
	}
	if cfg.Listen.PauseThreshold != 800*time.Millisecond {
		t.Errorf("listen.pause_threshold: got %s, want 800ms", cfg.Listen.PauseThreshold)
	}
	if got := cfg.Listen.Offline.StringOption("model_path", ""); got != "models/ggml-base.en.bin" {
		t.Errorf("listen.offline.options.model_path: got %q", got)
	}
	if cfg.Listen.LED != (config.LEDConfig{Room: 3, Action: 7}) {
		t.Errorf("listen.led: got %+v", cfg.Listen.LED)
	}
	if cfg.Scheduler.Tick != 250*time.Millisecond {
		t.Errorf("scheduler.tick: got %s", cfg.Scheduler.Tick)
	}
	if len(cfg.Plugins.Active) != 2 {
		t.Fatalf("plugins.active: got %d, want 2", len(cfg.Plugins.Active))
	}
}

func TestLoadFromReader_EmptyAppliesDefaults(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Scheduler.Tick != 500*time.Millisecond {
			t.Errorf("scheduler.tick default: got %s, want 500ms", cfg.Scheduler.Tick)
		}
		if cfg.Listen.MaxAttempts != 1 || cfg.Listen.ResponseTimeout != 5*time.Second {
			t.Errorf("listen defaults: got %+v", cfg.Listen)
		}
		if cfg.Listen.LED != (config.LEDConfig{Room: 2, Action: 51}) {
			t.Errorf("listen.led default: got %+v", cfg.Listen.LED)
		}
		if cfg.Speak.WorkerCommand[0] != "hearth-ttsworker" {
			t.Errorf("speak.worker_command default: got %v", cfg.Speak.WorkerCommand)
		}
		if cfg.Speak.Emotion.Enabled() {
			t.Error("emotion overlay should be disabled by default")
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("speak:\n  voice: robot\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"log format", "server:\n  log_format: xml\n", "log_format"},
		{"backend", "listen:\n  backend: cloud\n", "listen.backend"},
		{"attempts", "listen:\n  max_attempts: -2\n", "max_attempts"},
		{"negative timeout", "listen:\n  phrase_timeout: -1s\n", "phrase_timeout"},
		{"empty worker", "speak:\n  worker_command: [\"\"]\n", "worker_command"},
		{"duplicate plugin", "plugins:\n  active: [a.A, a.A]\n", "duplicate"},
		{"empty startup", "scheduler:\n  startup: [\"\"]\n", "scheduler.startup[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error should mention %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Listen.Backend = "remote"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "listen.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: expected ErrProviderNotRegistered, got %v", err)
	}
	if _, err := reg.CreateEmotion(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmotion: expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	want := &sttmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return want, nil
	})
	reg.RegisterEmotion("openai", func(config.ProviderEntry) (emotion.Classifier, error) {
		return &emotionmock.Classifier{Result: emotion.Joy}, nil
	})

	p, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://x"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p != want {
		t.Error("CreateSTT returned a different provider")
	}
	if gotEntry.BaseURL != "http://x" {
		t.Errorf("factory entry base_url: got %q", gotEntry.BaseURL)
	}
	if _, err := reg.CreateEmotion(config.ProviderEntry{Name: "openai"}); err != nil {
		t.Fatalf("CreateEmotion: %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, wantErr
	})
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

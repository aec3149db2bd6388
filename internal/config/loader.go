package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":     {"openai", "whisper", "whisper-native"},
	"emotion": {"openai"},
}

// SoundNames lists the sound keys the runtime plays.
var SoundNames = []string{"chime", "timer", "alarm", "startup", "shutdown"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with the runtime defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.LogFormat, LogFormatText)
	setDefault(&cfg.Server.Name, "Hearth")

	if len(cfg.Speak.WorkerCommand) == 0 {
		cfg.Speak.WorkerCommand = []string{"hearth-ttsworker"}
	}
	setDefault(&cfg.Speak.StartupTimeout, 10*time.Second)
	setDefault(&cfg.Speak.RequestTimeout, 2*time.Minute)

	setDefault(&cfg.Listen.Backend, BackendOnline)
	setDefault(&cfg.Listen.Language, "en")
	setDefault(&cfg.Listen.PauseThreshold, time.Second)
	setDefault(&cfg.Listen.ResponseTimeout, 5*time.Second)
	setDefault(&cfg.Listen.PhraseTimeout, 5*time.Second)
	setDefault(&cfg.Listen.AmbientDuration, time.Second)
	setDefault(&cfg.Listen.MaxAttempts, 1)
	setDefault(&cfg.Listen.LED.Room, 2)
	setDefault(&cfg.Listen.LED.Action, 51)

	setDefault(&cfg.Hotword.Interval, 100*time.Millisecond)
	setDefault(&cfg.Scheduler.Tick, 500*time.Millisecond)
	setDefault(&cfg.Plugins.Dir, "plugins")

	setDefault(&cfg.HomeServer.Timeout, 5*time.Second)
	setDefault(&cfg.HomeServer.Breaker.MaxFailures, 5)
	setDefault(&cfg.HomeServer.Breaker.ResetTimeout, 30*time.Second)
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, console", cfg.Server.LogFormat))
	}

	// Speak
	if len(cfg.Speak.WorkerCommand) == 0 || cfg.Speak.WorkerCommand[0] == "" {
		errs = append(errs, errors.New("speak.worker_command is required"))
	}
	if cfg.Speak.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("speak.request_timeout %s must not be negative", cfg.Speak.RequestTimeout))
	}
	if cfg.Speak.StartupTimeout < 0 {
		errs = append(errs, fmt.Errorf("speak.startup_timeout %s must not be negative", cfg.Speak.StartupTimeout))
	}
	for name := range cfg.Speak.Sounds {
		if !slices.Contains(SoundNames, name) {
			slog.Warn("unknown sound name in speak.sounds", "name", name, "known", SoundNames)
		}
	}
	emo := cfg.Speak.Emotion
	validateProviderName("emotion", emo.Classifier.Name)
	if (emo.Classifier.Name != "") != (len(emo.Player) > 0) {
		slog.Warn("speak.emotion needs both classifier and player; emotion overlay disabled")
	}

	// Listen
	l := cfg.Listen
	if l.Backend != "" && !l.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("listen.backend %q is invalid; valid values: online, offline", l.Backend))
	}
	if l.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("listen.max_attempts %d must be at least 1", l.MaxAttempts))
	}
	for name, d := range map[string]time.Duration{
		"pause_threshold":  l.PauseThreshold,
		"response_timeout": l.ResponseTimeout,
		"phrase_timeout":   l.PhraseTimeout,
		"ambient_duration": l.AmbientDuration,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("listen.%s %s must not be negative", name, d))
		}
	}
	validateProviderName("stt", l.Online.Name)
	validateProviderName("stt", l.Offline.Name)
	if (l.Backend == BackendOnline && l.Online.Name == "") || (l.Backend == BackendOffline && l.Offline.Name == "") {
		slog.Warn("no recognizer configured for the default listen backend; listen sessions will fail", "backend", l.Backend)
	}

	// Scheduler
	if cfg.Scheduler.Tick < 0 {
		errs = append(errs, fmt.Errorf("scheduler.tick %s must be positive", cfg.Scheduler.Tick))
	}

	// Plugins
	seen := make(map[string]int, len(cfg.Plugins.Active))
	for i, loc := range cfg.Plugins.Active {
		prefix := fmt.Sprintf("plugins.active[%d]", i)
		if loc == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", prefix))
			continue
		}
		if prev, ok := seen[loc]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of plugins.active[%d]", prefix, loc, prev))
		}
		seen[loc] = i
	}
	for i, loc := range cfg.Scheduler.Startup {
		if loc == "" {
			errs = append(errs, fmt.Errorf("scheduler.startup[%d] must not be empty", i))
		}
	}

	// Home server
	if cfg.HomeServer.BaseURL == "" {
		slog.Warn("home_server.base_url is empty; LED indicator and home status will not be available")
	}
	if cfg.HomeServer.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("home_server.breaker.max_failures %d must not be negative", cfg.HomeServer.Breaker.MaxFailures))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// Package config provides the configuration schema, loader, and provider
// registry for the hearth voice runtime.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	// LogFormatText uses slog.TextHandler.
	LogFormatText LogFormat = "text"

	// LogFormatJSON uses slog.JSONHandler.
	LogFormatJSON LogFormat = "json"

	// LogFormatConsole uses a colourised handler for interactive terminals.
	LogFormatConsole LogFormat = "console"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatText, LogFormatJSON, LogFormatConsole:
		return true
	}
	return false
}

// Backend selects the recognizer used by a listen session.
type Backend string

const (
	// BackendOnline uses the networked recognizer.
	BackendOnline Backend = "online"

	// BackendOffline uses the local recognizer.
	BackendOffline Backend = "offline"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	return b == BackendOnline || b == BackendOffline
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Speak      SpeakConfig      `yaml:"speak"`
	Listen     ListenConfig     `yaml:"listen"`
	Hotword    HotwordConfig    `yaml:"hotword"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	HomeServer HomeServerConfig `yaml:"home_server"`
}

// ServerConfig holds the status endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics
	// (e.g., ":9090"). Empty disables the status server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// Name is the assistant's spoken name, used in startup and shutdown
	// announcements.
	Name string `yaml:"name"`
}

// SpeakConfig configures the speak coordinator and its synthesis worker.
type SpeakConfig struct {
	// WorkerCommand is the synthesis worker program and its arguments.
	WorkerCommand []string `yaml:"worker_command"`

	// WorkerSecret authenticates requests to the worker. When empty a random
	// secret is generated per run.
	WorkerSecret string `yaml:"worker_secret"`

	// StartupTimeout bounds how long the worker may take to announce its
	// port.
	StartupTimeout time.Duration `yaml:"startup_timeout"`

	// RequestTimeout bounds one synthesis request, acknowledgment included.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Sounds maps sound names (chime, timer, alarm, startup, shutdown) to
	// audio files.
	Sounds map[string]string `yaml:"sounds"`

	// Emotion configures the optional emotion overlay. Both Classifier.Name
	// and Player must be set for the overlay to be active.
	Emotion EmotionConfig `yaml:"emotion"`
}

// EmotionConfig configures classification and representation of emotions.
type EmotionConfig struct {
	Classifier ProviderEntry `yaml:"classifier"`

	// Player is the media player command used to show emotions.
	Player []string `yaml:"player"`

	// Media maps emotion category names to media files.
	Media map[string]string `yaml:"media"`
}

// Enabled reports whether the overlay is configured.
func (e EmotionConfig) Enabled() bool {
	return e.Classifier.Name != "" && len(e.Player) > 0
}

// ListenConfig holds listen session defaults and recognizer backends.
type ListenConfig struct {
	Backend         Backend       `yaml:"backend"`
	Language        string        `yaml:"language"`
	PauseThreshold  time.Duration `yaml:"pause_threshold"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	PhraseTimeout   time.Duration `yaml:"phrase_timeout"`
	AmbientDuration time.Duration `yaml:"ambient_duration"`
	MaxAttempts     int           `yaml:"max_attempts"`

	Online  ProviderEntry `yaml:"online"`
	Offline ProviderEntry `yaml:"offline"`

	LED LEDConfig `yaml:"led"`
}

// LEDConfig identifies the listening indicator module on the home server.
type LEDConfig struct {
	Room   int `yaml:"room"`
	Action int `yaml:"action"`
}

// HotwordConfig configures the wake-phrase loop.
type HotwordConfig struct {
	// Phrases are the accepted wake phrases (case-insensitive). Empty
	// disables the hotword loop.
	Phrases []string `yaml:"phrases"`

	// Interval is the pause between two detection attempts while the
	// microphone is busy.
	Interval time.Duration `yaml:"interval"`
}

// SchedulerConfig configures the passive scheduler.
type SchedulerConfig struct {
	// Tick is the scheduler period.
	Tick time.Duration `yaml:"tick"`

	// Startup lists passive module locators scheduled at start.
	Startup []string `yaml:"startup"`
}

// PluginsConfig configures plugin discovery.
type PluginsConfig struct {
	// Dir is the directory containing one sub-directory per plugin with its
	// manifest.
	Dir string `yaml:"dir"`

	// Active lists active module locators loaded at start, in dispatch order.
	Active []string `yaml:"active"`
}

// HomeServerConfig configures the status client.
type HomeServerConfig struct {
	// BaseURL is the home-automation web server (e.g.,
	// "http://192.168.0.197:8080"). Empty disables the status client.
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig tunes the circuit breaker around home server calls.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] as a string, or def when absent.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

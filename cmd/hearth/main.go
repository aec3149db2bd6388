// Command hearth is the voice runtime of the home-automation assistant.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/hearth/internal/app"
	"github.com/MrWong99/hearth/internal/config"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/speak/worker"
	"github.com/MrWong99/hearth/pkg/provider/emotion"
	emotionopenai "github.com/MrWong99/hearth/pkg/provider/emotion/openai"
	"github.com/MrWong99/hearth/pkg/provider/stt"
	sttopenai "github.com/MrWong99/hearth/pkg/provider/stt/openai"
	"github.com/MrWong99/hearth/pkg/provider/stt/whisper"
)

// envAPIKey is read after the .env file was loaded.
const envAPIKey = "OPENAI_API_KEY"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	iteration := flag.StringP("iteration", "i", "0", "hotword model iteration announced at startup")
	workerCmd := flag.String("worker-cmd", "", "synthesis worker command line; overrides speak.worker_command")
	envFile := flag.StringP("env", "e", ".env", "env file with secrets")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "hearth: load env file %q: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hearth: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hearth: %v\n", err)
		}
		return 1
	}
	applyOverrides(cfg, *workerCmd)

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

	slog.Info("hearth starting",
		"config", *configPath,
		"iteration", *iteration,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hearth",
		ServiceVersion: *iteration,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders(providers)

	printStartupSummary(cfg, *iteration)

	application, err := app.New(ctx, cfg, providers, app.WithIteration(*iteration))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; say the wake phrase or press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyOverrides layers CLI flags and environment secrets over the file.
func applyOverrides(cfg *config.Config, workerCmd string) {
	if argv := strings.Fields(workerCmd); len(argv) > 0 {
		cfg.Speak.WorkerCommand = argv
	}
	if cfg.Speak.WorkerSecret == "" {
		cfg.Speak.WorkerSecret = os.Getenv(worker.SecretEnv)
	}
	key := os.Getenv(envAPIKey)
	for _, e := range []*config.ProviderEntry{&cfg.Listen.Online, &cfg.Listen.Offline, &cfg.Speak.Emotion.Classifier} {
		if e.Name == "openai" && e.APIKey == "" {
			e.APIKey = key
		}
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterEmotion("openai", func(entry config.ProviderEntry) (emotion.Classifier, error) {
		var opts []emotionopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, emotionopenai.WithBaseURL(entry.BaseURL))
		}
		return emotionopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the recognizers and the emotion classifier
// named in cfg.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	for _, slot := range []struct {
		backend config.Backend
		entry   config.ProviderEntry
		dst     *stt.Provider
	}{
		{config.BackendOnline, cfg.Listen.Online, &ps.Online},
		{config.BackendOffline, cfg.Listen.Offline, &ps.Offline},
	} {
		name := slot.entry.Name
		if name == "" {
			continue
		}
		p, err := reg.CreateSTT(slot.entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered; skipping", "kind", "stt", "name", name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s stt provider %q: %w", slot.backend, name, err)
		}
		*slot.dst = p
		slog.Info("provider created", "kind", "stt", "backend", slot.backend, "name", name)
	}

	if entry := cfg.Speak.Emotion.Classifier; entry.Name != "" {
		c, err := reg.CreateEmotion(entry)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not registered; skipping", "kind", "emotion", "name", entry.Name)
		case err != nil:
			// The overlay is optional; run without it.
			slog.Warn("emotion classifier disabled", "name", entry.Name, "err", err)
		default:
			ps.Emotion = c
			slog.Info("provider created", "kind", "emotion", "name", entry.Name)
		}
	}
	return ps, nil
}

func closeProviders(ps *app.Providers) {
	for _, p := range []any{ps.Online, ps.Offline, ps.Emotion} {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("provider close error", "err", err)
			}
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, iteration string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Hearth — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Name", cfg.Server.Name)
	printRow("Iteration", iteration)
	printProvider("STT online", cfg.Listen.Online.Name, cfg.Listen.Online.Model)
	printProvider("STT offline", cfg.Listen.Offline.Name, cfg.Listen.Offline.Model)
	printProvider("Emotion", cfg.Speak.Emotion.Classifier.Name, cfg.Speak.Emotion.Classifier.Model)
	printRow("Backend", string(cfg.Listen.Backend))
	printRow("Worker", strings.Join(cfg.Speak.WorkerCommand, " "))
	printRow("Active plugins", fmt.Sprint(len(cfg.Plugins.Active)))
	printRow("Startup passive", fmt.Sprint(len(cfg.Scheduler.Startup)))
	if cfg.HomeServer.BaseURL != "" {
		printRow("Home server", cfg.HomeServer.BaseURL)
	} else {
		printRow("Home server", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	switch format {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	case config.LogFormatConsole:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
}

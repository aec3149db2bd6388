// Command hearth-ttsworker is the out-of-process speech synthesis worker
// spawned by hearth. It announces its port on stdout, then renders every
// authenticated request with a local synthesis program until it receives the
// shutdown token.
//
// Everything after "--" is the synthesis program template, for example:
//
//	hearth-ttsworker --voice en-us -- espeak-ng -v {voice} -s {rate} {text}
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/hearth/internal/speak/worker"
	"github.com/MrWong99/hearth/pkg/provider/tts"
	"github.com/MrWong99/hearth/pkg/provider/tts/command"
)

// defaultEngine is used when no program template follows "--".
var defaultEngine = []string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"}

func main() {
	os.Exit(run())
}

func run() int {
	voice := flag.String("voice", "en-us", "voice passed to the synthesis program as {voice}")
	rate := flag.Int("rate", 160, "speaking rate passed as {rate}")
	addr := flag.String("addr", "127.0.0.1:0", "listen address; port 0 picks a free port")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Stdout carries the port announcement; logs go to stderr.
	lvl := slog.LevelInfo
	if *debug {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})))

	engine := flag.Args()
	if len(engine) == 0 {
		engine = defaultEngine
	}
	v := tts.Voice{Name: *voice, Rate: *rate}
	p, err := command.New(engine, command.WithDefaultVoice(v))
	if err != nil {
		slog.Error("failed to create synthesis provider", "err", err)
		return 1
	}
	srv, err := worker.NewServer(p, os.Getenv(worker.SecretEnv), worker.WithVoice(v))
	if err != nil {
		slog.Error("failed to create worker", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx, *addr, func(port int) error {
		return worker.Announce(os.Stdout, port)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "hearth-ttsworker: %v\n", err)
		return 1
	}
	slog.Info("worker stopped")
	return 0
}

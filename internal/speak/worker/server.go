package worker

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hearth/pkg/provider/tts"
)

// readLimit bounds the size of one text message.
const readLimit = 64 << 10

// Server is the worker half of the protocol. Synthesis requests are handled
// one at a time, so overlapping connections queue on the provider.
type Server struct {
	provider tts.Provider
	secret   string
	voice    tts.Voice

	synth    sync.Mutex
	shutdown chan struct{}
	once     sync.Once
}

// Option customises a [Server].
type Option func(*Server)

// WithVoice sets the voice passed to the provider on every request.
func WithVoice(v tts.Voice) Option {
	return func(s *Server) { s.voice = v }
}

// NewServer returns a Server that renders text with p and accepts only
// requests carrying secret.
func NewServer(p tts.Provider, secret string, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("worker: provider must not be nil")
	}
	if secret == "" {
		return nil, errors.New("worker: secret must not be empty")
	}
	s := &Server{provider: p, secret: secret, shutdown: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Done is closed once the shutdown token was received.
func (s *Server) Done() <-chan struct{} { return s.shutdown }

// ServeHTTP handles one protocol exchange per connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(got), []byte(AuthHeader(s.secret))) != 1 {
		slog.Warn("worker: rejected unauthenticated connection", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("worker: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	_, data, err := conn.Read(ctx)
	if err != nil {
		slog.Debug("worker: read failed", "err", err)
		return
	}
	text := string(data)

	if text == ShutdownToken {
		slog.Info("worker: shutdown requested")
		s.once.Do(func() { close(s.shutdown) })
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	start := time.Now()
	s.synth.Lock()
	err = s.provider.Speak(ctx, text, s.voice)
	s.synth.Unlock()
	if err != nil {
		slog.Error("worker: synthesis failed", "err", err, "chars", len(text))
		conn.Close(websocket.StatusInternalError, "synthesis failed")
		return
	}
	slog.Debug("worker: synthesized", "chars", len(text), "duration", time.Since(start))

	if err := conn.Write(ctx, websocket.MessageText, []byte(Ack)); err != nil {
		slog.Warn("worker: ack failed", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// Run listens on addr (normally "127.0.0.1:0"), calls announce with the
// chosen port and serves until the shutdown token arrives or ctx is
// cancelled. In-flight syntheses are given a short grace period.
func (s *Server) Run(ctx context.Context, addr string, announce func(port int) error) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("worker: listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	srv := &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	if err := announce(port); err != nil {
		_ = srv.Close()
		return fmt.Errorf("worker: announce: %w", err)
	}
	slog.Info("worker: listening", "port", port)

	select {
	case <-ctx.Done():
	case <-s.shutdown:
	case err := <-serveErr:
		return fmt.Errorf("worker: serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	return nil
}

// Package listen arbitrates the microphone. A [Coordinator] runs one listen
// session at a time: it takes the [Busy] flag, lights the listening LED,
// calibrates, captures and recognizes until an attempt succeeds or the
// attempts are used up.
//
// The recognizer backend is chosen per request. Failures of one backend are
// retried on the same backend; there is no silent fallback to the other.
package listen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/hearth/internal/config"
	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/speak"
	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/provider/stt"
)

// Request describes one listen session. Zero fields take the coordinator's
// defaults.
type Request struct {
	// Prompt is spoken before every attempt unless Chime is set.
	Prompt string

	// Chime plays the listening cue before every attempt. It takes
	// precedence over Prompt.
	Chime bool

	// Backend selects the recognizer. Empty selects [Coordinator.Backend].
	Backend config.Backend

	PauseThreshold  time.Duration
	ResponseTimeout time.Duration
	PhraseTimeout   time.Duration
	MaxAttempts     int
}

// Listener is the listen surface handed to plugins.
type Listener interface {
	// ListenOnce runs one session and returns the lowercased transcript. It
	// waits for a background capture to hand over the microphone and returns
	// ("", false) when another session owns it or every attempt failed.
	ListenOnce(ctx context.Context, req Request) (string, bool)
}

// Config holds session defaults.
type Config struct {
	// Defaults supplies values for zero Request fields.
	Defaults Request

	// Language is passed to the recognizer.
	Language string

	// AmbientDuration is the noise calibration window at session start.
	AmbientDuration time.Duration

	// LED identifies the listening indicator on the home server.
	LED config.LEDConfig
}

// FromConfig converts the listen section of the configuration file.
func FromConfig(c config.ListenConfig) Config {
	return Config{
		Defaults: Request{
			Backend:         c.Backend,
			PauseThreshold:  c.PauseThreshold,
			ResponseTimeout: c.ResponseTimeout,
			PhraseTimeout:   c.PhraseTimeout,
			MaxAttempts:     c.MaxAttempts,
		},
		Language:        c.Language,
		AmbientDuration: c.AmbientDuration,
		LED:             c.LED,
	}
}

// Option customises a [Coordinator].
type Option func(*Coordinator)

// WithRecognizer registers the recognizer for backend b.
func WithRecognizer(b config.Backend, p stt.Provider) Option {
	return func(c *Coordinator) { c.recognizers[b] = p }
}

// WithSpeaker sets the speaker used for prompts and the chime.
func WithSpeaker(s speak.Speaker) Option {
	return func(c *Coordinator) { c.speaker = s }
}

// WithStatus sets the status client that drives the LED.
func WithStatus(api homeserver.API) Option {
	return func(c *Coordinator) { c.status = api }
}

// WithBusy shares an existing busy flag, typically with the hotword loop.
func WithBusy(b *Busy) Option {
	return func(c *Coordinator) { c.busy = b }
}

// WithOnlineCheck sets the probe consulted by [Coordinator.Backend] when the
// default backend is online.
func WithOnlineCheck(online func() bool) Option {
	return func(c *Coordinator) { c.online = online }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator implements [Listener].
type Coordinator struct {
	mic         audio.Microphone
	cfg         Config
	recognizers map[config.Backend]stt.Provider
	speaker     speak.Speaker
	status      homeserver.API
	busy        *Busy
	online      func() bool
	metrics     *observe.Metrics
}

var _ Listener = (*Coordinator)(nil)

// New returns a coordinator for mic.
func New(mic audio.Microphone, cfg Config, opts ...Option) (*Coordinator, error) {
	if mic == nil {
		return nil, errors.New("listen: microphone must not be nil")
	}
	if cfg.Defaults.MaxAttempts <= 0 {
		cfg.Defaults.MaxAttempts = 1
	}
	if cfg.Defaults.Backend == "" {
		cfg.Defaults.Backend = config.BackendOnline
	}
	c := &Coordinator{
		mic:         mic,
		cfg:         cfg,
		recognizers: make(map[config.Backend]stt.Provider),
	}
	for _, o := range opts {
		o(c)
	}
	if c.busy == nil {
		c.busy = &Busy{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if len(c.recognizers) == 0 {
		return nil, errors.New("listen: at least one recognizer is required")
	}
	return c, nil
}

// Busy returns the flag guarding the microphone.
func (c *Coordinator) Busy() *Busy { return c.busy }

// Backend returns the backend used for requests that do not name one. An
// online default is swapped for offline when the online check fails.
func (c *Coordinator) Backend() config.Backend {
	b := c.cfg.Defaults.Backend
	if b == config.BackendOnline && c.online != nil && !c.online() {
		if _, ok := c.recognizers[config.BackendOffline]; ok {
			return config.BackendOffline
		}
	}
	return b
}

// ListenOnce runs one listen session.
func (c *Coordinator) ListenOnce(ctx context.Context, req Request) (string, bool) {
	start := time.Now()
	req = c.withDefaults(req)

	rec, ok := c.recognizers[req.Backend]
	if !ok {
		observe.Logger(ctx).Error("listen: no recognizer for backend", "backend", req.Backend)
		c.metrics.RecordListenSession(ctx, string(req.Backend), "no_backend", time.Since(start))
		return "", false
	}
	if !c.busy.Acquire(ctx) {
		observe.Logger(ctx).Debug("listen: microphone busy")
		c.metrics.RecordListenSession(ctx, string(req.Backend), "busy", 0)
		return "", false
	}
	defer c.busy.Release()

	ctx, span := observe.StartSpan(ctx, "listen.session")
	defer span.End()
	log := observe.Logger(ctx).With("backend", req.Backend)

	c.setLED(ctx, true)
	defer c.setLED(context.WithoutCancel(ctx), false)

	if err := c.mic.Calibrate(ctx, c.cfg.AmbientDuration); err != nil {
		log.Warn("listen: calibration failed", "err", err)
	}

	opts := audio.CaptureOptions{
		ResponseTimeout: req.ResponseTimeout,
		PhraseTimeout:   req.PhraseTimeout,
		PauseThreshold:  req.PauseThreshold,
	}
	for attempt := 1; attempt <= req.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		c.cue(ctx, req)

		text, err := c.attempt(ctx, rec, req.Backend, opts)
		if err != nil {
			log.Debug("listen: attempt failed", "attempt", attempt, "err", err)
			continue
		}
		c.metrics.RecordListenSession(ctx, string(req.Backend), "ok", time.Since(start))
		return text, true
	}

	outcome := "failed"
	if ctx.Err() != nil {
		outcome = "cancelled"
	}
	c.metrics.RecordListenSession(ctx, string(req.Backend), outcome, time.Since(start))
	return "", false
}

// attempt captures and recognizes one phrase.
func (c *Coordinator) attempt(ctx context.Context, rec stt.Provider, backend config.Backend, opts audio.CaptureOptions) (string, error) {
	clip, err := c.mic.Capture(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("listen: capture: %w", err)
	}
	if clip.Empty() {
		return "", audio.ErrNoSpeech
	}

	t := time.Now()
	text, err := rec.Recognize(ctx, clip, stt.Config{Language: c.cfg.Language})
	c.metrics.RecordRecognize(ctx, string(backend), time.Since(t))
	if err != nil {
		return "", fmt.Errorf("listen: recognize: %w", err)
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", stt.ErrUnintelligible
	}
	return text, nil
}

// cue speaks the prompt or plays the chime and waits for it to finish.
func (c *Coordinator) cue(ctx context.Context, req Request) {
	if c.speaker == nil {
		return
	}
	var err error
	switch {
	case req.Chime:
		err = c.speaker.Enqueue(ctx, speak.Sound(speak.KindChime).Sync())
	case req.Prompt != "":
		err = speak.Say(ctx, c.speaker, req.Prompt)
	}
	if err != nil {
		observe.Logger(ctx).Warn("listen: cue failed", "err", err)
	}
}

func (c *Coordinator) setLED(ctx context.Context, on bool) {
	if c.status == nil {
		return
	}
	if err := c.status.SetLED(ctx, on, c.cfg.LED.Room, c.cfg.LED.Action); err != nil {
		observe.Logger(ctx).Debug("listen: LED update failed", "on", on, "err", err)
	}
}

func (c *Coordinator) withDefaults(req Request) Request {
	d := c.cfg.Defaults
	if req.Backend == "" {
		req.Backend = c.Backend()
	}
	if req.PauseThreshold <= 0 {
		req.PauseThreshold = d.PauseThreshold
	}
	if req.ResponseTimeout <= 0 {
		req.ResponseTimeout = d.ResponseTimeout
	}
	if req.PhraseTimeout <= 0 {
		req.PhraseTimeout = d.PhraseTimeout
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = d.MaxAttempts
	}
	return req
}

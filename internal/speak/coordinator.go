package speak

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/audio/playback"
	"github.com/MrWong99/hearth/pkg/provider/emotion"
)

// shutdownGrace bounds how long Close waits for the worker to exit after the
// shutdown token.
const shutdownGrace = 5 * time.Second

// Config configures a [Coordinator].
type Config struct {
	// WorkerCommand is the synthesis worker program and its arguments.
	WorkerCommand []string

	// Secret authenticates requests to the worker. Empty generates a random
	// secret for this run.
	Secret string

	// StartupTimeout bounds the bootstrap handshake. Default: 10s.
	StartupTimeout time.Duration

	// RequestTimeout bounds one synthesis request. Default: 2m.
	RequestTimeout time.Duration
}

// Option customises a [Coordinator].
type Option func(*Coordinator)

// WithPlayer sets the local sound output. Sound events are skipped without
// one.
func WithPlayer(p audio.Player) Option {
	return func(c *Coordinator) { c.player = p }
}

// WithEmotion enables the emotion overlay. Both arguments must be non-nil for
// the overlay to run.
func WithEmotion(cl emotion.Classifier, rep emotion.Representation) Option {
	return func(c *Coordinator) {
		c.classifier = cl
		c.representation = rep
	}
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithWorkerEnv adds KEY=VALUE entries to the worker's environment.
func WithWorkerEnv(kv ...string) Option {
	return func(c *Coordinator) { c.workerEnv = append(c.workerEnv, kv...) }
}

// pending is a queued event plus the channel closed once it was processed.
type pending struct {
	ev       Event
	done     chan struct{}
	link     trace.SpanStartOption
	queuedAt time.Time
}

// Coordinator serialises every speak and sound request through one FIFO
// queue. It is safe for concurrent use.
type Coordinator struct {
	cfg            Config
	worker         *workerChannel
	workerEnv      []string
	player         audio.Player
	classifier     emotion.Classifier
	representation emotion.Representation
	metrics        *observe.Metrics

	mu     sync.Mutex
	queue  []*pending
	closed bool
	wake   chan struct{}

	runCtx    context.Context
	cancelRun context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Compile-time assertion that Coordinator satisfies Speaker.
var _ Speaker = (*Coordinator)(nil)

// New spawns the synthesis worker, waits for its port announcement and
// starts the processing loop. It fails with [ErrNoEndpoint] if the worker
// never announces a port; the coordinator must not be used in that case.
func New(ctx context.Context, cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
	}

	c := &Coordinator{
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	w, err := startWorker(ctx, cfg.WorkerCommand, cfg.Secret, cfg.StartupTimeout, c.workerEnv)
	if err != nil {
		return nil, err
	}
	c.worker = w

	c.runCtx, c.cancelRun = context.WithCancel(context.Background())
	go c.loop()
	return c, nil
}

// Enqueue appends ev to the queue. A non-blocking event returns right away.
// A blocking event returns once the loop has fully processed that exact
// event, or earlier with ctx.Err() if ctx ends first; the event itself stays
// queued either way since enqueued events cannot be cancelled.
func (c *Coordinator) Enqueue(ctx context.Context, ev Event) error {
	_, link := observe.Linked(ctx)
	p := &pending{ev: ev, done: make(chan struct{}), link: link, queuedAt: time.Now()}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, p)
	c.mu.Unlock()

	c.metrics.SpeakQueueDepth.Add(ctx, 1)
	c.signal()

	if !ev.Blocking {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of events not yet fully processed, including
// the one in progress.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Ready reports whether the worker handshake completed and the worker
// process is still alive.
func (c *Coordinator) Ready() bool {
	return c.worker.alive()
}

// Close rejects new events, lets the loop finish what is already queued and
// then sends the shutdown token to the worker. If ctx ends before the queue
// drained, the in-flight event is cancelled and the rest are released
// without being rendered.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.signal()

		select {
		case <-c.loopDone:
		case <-ctx.Done():
			c.cancelRun()
			<-c.loopDone
		}
		c.cancelRun()
		c.closeErr = c.worker.shutdown(context.Background(), shutdownGrace)
	})
	return c.closeErr
}

func (c *Coordinator) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// loop is the only goroutine that touches the worker and the player. An
// event leaves the queue only after it has been processed.
func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			<-c.wake
			continue
		}
		p := c.queue[0]
		c.mu.Unlock()

		c.process(p)

		c.mu.Lock()
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()
		close(p.done)
	}
}

func (c *Coordinator) process(p *pending) {
	kind := p.ev.Kind.String()
	ctx, span := observe.StartSpan(c.runCtx, "speak."+kind, p.link)
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	status := "ok"
	var err error
	if c.runCtx.Err() != nil {
		status, err = "dropped", c.runCtx.Err()
	} else {
		switch p.ev.Kind {
		case KindText:
			text := strings.TrimSpace(p.ev.Content)
			if text == "" {
				status = "skipped"
				break
			}
			err = c.speakText(ctx, text)
		case KindStartup, KindShutdown, KindChime, KindTimer, KindAlarm:
			err = c.playSound(ctx, p.ev.Kind)
		default:
			err = fmt.Errorf("speak: unknown event kind %d", p.ev.Kind)
		}
		if err != nil {
			status = "error"
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("speak: event dropped", "kind", kind, "err", err)
	} else {
		log.Debug("speak: event done", "kind", kind, "status", status,
			"waited", start.Sub(p.queuedAt), "took", time.Since(start))
	}
	c.metrics.RecordSpeakEvent(ctx, kind, status, time.Since(start))
	c.metrics.SpeakQueueDepth.Add(ctx, -1)
}

// speakText sends text to the worker, bracketed by the emotion overlay when
// both halves are configured.
func (c *Coordinator) speakText(ctx context.Context, text string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if c.classifier == nil || c.representation == nil {
		return c.worker.speak(reqCtx, text)
	}

	log := observe.Logger(ctx)
	cat, err := c.classifier.Classify(ctx, text)
	if err != nil {
		log.Warn("speak: emotion classification failed", "err", err)
		cat = emotion.Neutral
	}

	started := make(chan error, 1)
	go func() { started <- c.representation.Start(ctx, cat) }()

	err = c.worker.speak(reqCtx, text)

	if startErr := <-started; startErr != nil {
		log.Warn("speak: emotion representation failed", "emotion", cat, "err", startErr)
	} else if stopErr := c.representation.Stop(); stopErr != nil {
		log.Warn("speak: stop emotion representation", "err", stopErr)
	}
	return err
}

func (c *Coordinator) playSound(ctx context.Context, k Kind) error {
	if c.player == nil {
		observe.Logger(ctx).Debug("speak: no player configured, skipping sound", "sound", k.String())
		return nil
	}
	err := c.player.Play(ctx, k.String())
	if errors.Is(err, playback.ErrUnknownSound) {
		observe.Logger(ctx).Debug("speak: sound not configured", "sound", k.String())
		return nil
	}
	return err
}

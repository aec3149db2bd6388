// Package app wires all hearth subsystems into a running voice runtime.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the hotword loop, the passive scheduler and the
// status server, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithSpeaker, WithMicrophone, WithHomeServer, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/hearth/internal/config"
	"github.com/MrWong99/hearth/internal/dispatch"
	"github.com/MrWong99/hearth/internal/health"
	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/hotword"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/passive"
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins"
	"github.com/MrWong99/hearth/internal/plugins/homeautomation"
	"github.com/MrWong99/hearth/internal/resilience"
	"github.com/MrWong99/hearth/internal/speak"
	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/audio/mic"
	"github.com/MrWong99/hearth/pkg/audio/playback"
	"github.com/MrWong99/hearth/pkg/provider/emotion"
	"github.com/MrWong99/hearth/pkg/provider/emotion/display"
	"github.com/MrWong99/hearth/pkg/provider/stt"
)

// greetingTimeout bounds the home status query made for the startup greeting.
const greetingTimeout = 3 * time.Second

// Providers holds the recognizers and the emotion classifier. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Online  stt.Provider
	Offline stt.Provider
	Emotion emotion.Classifier
}

// Speaker is the speech output the app owns. *speak.Coordinator satisfies it.
type Speaker interface {
	speak.Speaker
	Close(ctx context.Context) error
}

// HomeServer is the home server client the app owns. *homeserver.Client
// satisfies it.
type HomeServer interface {
	homeserver.API
	Refresh(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	iteration string
	metrics   *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	speaker    Speaker
	player     audio.Player
	mic        audio.Microphone
	home       HomeServer
	online     func() bool
	listener   *listen.Coordinator
	registry   *plugin.Registry
	loader     *plugin.Loader
	scheduler  *passive.Scheduler
	dispatcher *dispatch.Dispatcher
	hotword    *hotword.Loop
	health     *health.Handler

	// closers are called in order during Shutdown, after the scheduler and
	// the speaker.
	closers []func() error

	runMu     sync.Mutex
	cancelRun context.CancelFunc
	stopped   bool

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSpeaker injects the speech output instead of spawning the synthesis
// worker.
func WithSpeaker(s Speaker) Option {
	return func(a *App) { a.speaker = s }
}

// WithPlayer injects the local sound output instead of a beep player.
func WithPlayer(p audio.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMicrophone injects the microphone instead of opening the default
// input device.
func WithMicrophone(m audio.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithHomeServer injects the home server client instead of creating one
// from config.
func WithHomeServer(h HomeServer) Option {
	return func(a *App) { a.home = h }
}

// WithOnlineCheck overrides the internet check. Default: the home server is
// connected.
func WithOnlineCheck(online func() bool) Option {
	return func(a *App) { a.online = online }
}

// WithRegistry injects the plugin registry instead of the built-in one.
func WithRegistry(r *plugin.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithIteration sets the hotword model iteration announced at startup.
func WithIteration(it string) Option {
	return func(a *App) { a.iteration = it }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. It fails when the
// speech output, the microphone or the listen coordinator cannot be set up;
// the home server, plugins and the hotword loop degrade with a warning.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.initHomeServer()

	if err := a.initSpeaker(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init speaker: %w", err)
	}

	if err := a.initListener(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init listener: %w", err)
	}

	a.initPlugins(ctx)

	if err := a.initHotword(); err != nil {
		slog.Warn("hotword loop disabled", "err", err)
	}

	a.initHealth()
	return a, nil
}

func (a *App) initHomeServer() {
	if a.home == nil && a.cfg.HomeServer.BaseURL != "" {
		hs := a.cfg.HomeServer
		c, err := homeserver.New(hs.BaseURL,
			homeserver.WithHTTPClient(&http.Client{Timeout: hs.Timeout}),
			homeserver.WithBreaker(resilience.Config{
				Name:         "home_server",
				MaxFailures:  hs.Breaker.MaxFailures,
				ResetTimeout: hs.Breaker.ResetTimeout,
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Info("circuit breaker state changed", "name", name, "from", from, "to", to)
				},
			}),
			homeserver.WithMetrics(a.metrics),
		)
		if err != nil {
			slog.Warn("home server client disabled", "err", err)
		} else {
			a.home = c
		}
	}
	if a.online == nil {
		a.online = func() bool { return a.home != nil && a.home.Connected() }
	}
}

func (a *App) initSpeaker(ctx context.Context) error {
	if a.speaker != nil {
		return nil
	}
	if a.player == nil {
		a.player = playback.New(a.cfg.Speak.Sounds)
	}
	opts := []speak.Option{
		speak.WithPlayer(a.player),
		speak.WithMetrics(a.metrics),
	}
	if emo := a.cfg.Speak.Emotion; emo.Enabled() && a.providers.Emotion != nil {
		media := make(map[emotion.Category]string, len(emo.Media))
		for k, v := range emo.Media {
			media[emotion.Category(k)] = v
		}
		d, err := display.New(emo.Player, media)
		if err != nil {
			slog.Warn("emotion overlay disabled", "err", err)
		} else {
			opts = append(opts, speak.WithEmotion(a.providers.Emotion, d))
			a.closers = append(a.closers, d.Stop)
		}
	}
	c, err := speak.New(ctx, speak.Config{
		WorkerCommand:  a.cfg.Speak.WorkerCommand,
		Secret:         a.cfg.Speak.WorkerSecret,
		StartupTimeout: a.cfg.Speak.StartupTimeout,
		RequestTimeout: a.cfg.Speak.RequestTimeout,
	}, opts...)
	if err != nil {
		return err
	}
	a.speaker = c
	return nil
}

func (a *App) initListener() error {
	if a.mic == nil {
		m, err := mic.New()
		if err != nil {
			return err
		}
		a.mic = m
		a.closers = append(a.closers, m.Close)
	}
	opts := []listen.Option{
		listen.WithSpeaker(a.speaker),
		listen.WithOnlineCheck(a.online),
		listen.WithMetrics(a.metrics),
	}
	if a.providers.Online != nil {
		opts = append(opts, listen.WithRecognizer(config.BackendOnline, a.providers.Online))
	}
	if a.providers.Offline != nil {
		opts = append(opts, listen.WithRecognizer(config.BackendOffline, a.providers.Offline))
	}
	if a.home != nil {
		opts = append(opts, listen.WithStatus(a.home))
	}
	l, err := listen.New(a.mic, listen.FromConfig(a.cfg.Listen), opts...)
	if err != nil {
		return err
	}
	a.listener = l
	return nil
}

func (a *App) initPlugins(ctx context.Context) {
	if a.registry == nil {
		a.registry = plugin.NewRegistry()
		plugins.RegisterBuiltins(a.registry)
	}
	deps := plugin.Deps{Speaker: a.speaker, Listener: a.listener}
	if a.home != nil {
		deps.Status = a.home
	}
	a.loader = plugin.NewLoader(a.cfg.Plugins.Dir, a.registry, deps, plugin.WithMetrics(a.metrics))
	a.scheduler = passive.New(a.loader,
		passive.WithTick(a.cfg.Scheduler.Tick),
		passive.WithMetrics(a.metrics),
	)

	active := a.cfg.Plugins.Active
	if len(active) == 0 {
		active = plugins.DefaultActive
	}
	instances := a.loader.LoadAll(ctx, active)

	dopts := []dispatch.Option{
		dispatch.WithScheduler(a.scheduler),
		dispatch.WithOnlineCheck(a.online),
		dispatch.WithStopFunc(a.stop),
		dispatch.WithMetrics(a.metrics),
	}
	if a.home != nil {
		dopts = append(dopts, dispatch.WithStatus(a.home))
	}
	a.dispatcher = dispatch.New(a.speaker, instances, dopts...)
	slog.Info("plugins loaded", "active", len(a.dispatcher.Instances()), "requested", len(active))
}

func (a *App) initHotword() error {
	rec := a.providers.Offline
	if rec == nil {
		rec = a.providers.Online
	}
	if rec == nil {
		return errors.New("no recognizer configured")
	}
	phrases := a.cfg.Hotword.Phrases
	if len(phrases) == 0 {
		name := strings.ToLower(a.cfg.Server.Name)
		phrases = []string{"hey " + name, name}
	}
	det, err := hotword.NewPhraseDetector(rec, phrases, a.cfg.Listen.Language)
	if err != nil {
		return err
	}
	routine := &hotword.Routine{
		Listener:   a.listener,
		Dispatcher: a.dispatcher,
		Attempts:   maxCommandAttempts,
	}
	if a.home != nil {
		routine.Refresher = a.home
	}
	l, err := hotword.New(a.mic, det, a.listener.Busy(), routine,
		hotword.WithInterval(a.cfg.Hotword.Interval))
	if err != nil {
		return err
	}
	a.hotword = l
	return nil
}

// maxCommandAttempts bounds how often the user is asked again after a
// command no plugin understood.
const maxCommandAttempts = 3

func (a *App) initHealth() {
	a.health = health.New(
		health.Flag("speaker", a.speakerReady),
		health.Flag("scheduler", a.scheduler.Running),
	)
	if c, ok := a.home.(*homeserver.Client); ok {
		a.health.Add(health.Flag("home_server", func() bool {
			return c.Breaker().State() != resilience.StateOpen
		}))
	}
}

func (a *App) speakerReady() bool {
	if r, ok := a.speaker.(interface{ Ready() bool }); ok {
		return r.Ready()
	}
	return true
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Scheduler returns the passive scheduler.
func (a *App) Scheduler() *passive.Scheduler { return a.scheduler }

// Listener returns the listen coordinator.
func (a *App) Listener() *listen.Coordinator { return a.listener }

// Handler returns the status server handler: health probes, Prometheus
// metrics and request metrics around both.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	return observe.Middleware(a.metrics)(mux)
}

// Run greets the user, schedules the startup passive modules and blocks
// until ctx is cancelled, a stop command is heard or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.runMu.Lock()
	if a.stopped {
		a.runMu.Unlock()
		return nil
	}
	a.cancelRun = cancel
	a.runMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })

	a.greet(gctx)
	if n := a.scheduler.ScheduleStartup(gctx, a.cfg.Scheduler.Startup); n > 0 {
		slog.Info("startup passive modules scheduled", "count", n)
	}

	if a.hotword != nil {
		g.Go(func() error { return a.hotword.Run(gctx) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("status server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("hearth is running", "name", a.cfg.Server.Name, "hotword", a.hotword != nil)
	return g.Wait()
}

// greet plays the startup sound and announces the server, followed by the
// weather when the home server knows it.
func (a *App) greet(ctx context.Context) {
	if err := a.speaker.Enqueue(ctx, speak.Sound(speak.KindStartup)); err != nil {
		slog.Warn("startup sound failed", "err", err)
	}
	text := fmt.Sprintf("%s is online: Model iteration %s.", a.cfg.Server.Name, a.iterationOrDefault())
	if a.home != nil {
		qctx, cancel := context.WithTimeout(ctx, greetingTimeout)
		st, err := a.home.QueryHomeStatus(qctx)
		cancel()
		switch {
		case err != nil:
			slog.Debug("home status unavailable for greeting", "err", err)
		case st.WeatherData != nil:
			text += " " + homeautomation.WeatherReport(*st.WeatherData)
		}
	}
	if err := a.speaker.Enqueue(ctx, speak.Text(text)); err != nil {
		slog.Warn("startup greeting failed", "err", err)
	}
}

func (a *App) iterationOrDefault() string {
	if a.iteration == "" {
		return "0"
	}
	return a.iteration
}

// stop is handed to the dispatcher: a stop command ends Run.
func (a *App) stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.stopped = true
	if a.cancelRun != nil {
		a.cancelRun()
	}
}

// Shutdown tears down all subsystems in order: the scheduler first so no
// activation speaks into a closed output, then the speaker after the
// shutdown sound, then the remaining closers. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.stop()

		if err := a.scheduler.Close(ctx); err != nil {
			slog.Warn("scheduler close error", "err", err)
		}
		if err := a.speaker.Enqueue(ctx, speak.Sound(speak.KindShutdown).Sync()); err != nil {
			slog.Warn("shutdown sound failed", "err", err)
		}
		if err := a.speaker.Close(ctx); err != nil {
			slog.Warn("speaker close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	if a.speaker != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.speaker.Close(ctx)
	}
	for _, c := range a.closers {
		_ = c()
	}
}

// Package passive fires passive plugins on a fixed tick.
//
// A [Scheduler] keeps one record per scheduled activation, keyed by ID. Every
// period it advances its tick counter, removes all records whose due tick has
// been reached and activates each one on its own goroutine. Removal and
// cancellation happen under the same lock, so a record fires at most once and
// never after a successful [Scheduler.Cancel].
package passive

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/plugin"
)

// DefaultTick is the scheduler period.
const DefaultTick = 500 * time.Millisecond

var (
	// ErrClosed is returned when scheduling on a closed scheduler.
	ErrClosed = errors.New("passive: scheduler closed")

	// ErrDuplicateID is returned when a pending record already uses the ID.
	ErrDuplicateID = errors.New("passive: duplicate record id")

	// ErrInvalidPlugin is returned when the locator does not load into a
	// valid passive plugin.
	ErrInvalidPlugin = errors.New("passive: plugin is not a valid passive module")
)

// Loader builds plugin instances.
type Loader interface {
	Load(ctx context.Context, locator string) *plugin.Instance
	Manifest(locator string) (plugin.Manifest, error)
}

// Record is one pending activation.
type Record struct {
	ID       string
	Instance *plugin.Instance
	DueTick  int64
	Payload  map[string]any
}

// Option customises a [Scheduler].
type Option func(*Scheduler)

// WithTick overrides [DefaultTick].
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler is the passive scheduler. It is safe for concurrent use.
type Scheduler struct {
	loader  Loader
	tick    time.Duration
	metrics *observe.Metrics

	mu      sync.Mutex
	records map[string]*Record
	ticks   int64
	closed  bool

	running  chan struct{} // closed when Run starts
	stop     chan struct{}
	stopOnce sync.Once
	loopDone chan struct{}

	// runCtx is cancelled once in-flight activations exceed their dispose
	// timeout during Close.
	runCtx    context.Context
	runCancel context.CancelFunc
	inflight  sync.WaitGroup
	active    sync.Map // *activation -> struct{}
}

var _ plugin.Scheduler = (*Scheduler)(nil)

type activation struct {
	rec  *Record
	done chan struct{}
}

// New returns a scheduler. Call [Scheduler.Run] to start ticking.
func New(loader Loader, opts ...Option) *Scheduler {
	s := &Scheduler{
		loader:   loader,
		tick:     DefaultTick,
		records:  make(map[string]*Record),
		running:  make(chan struct{}),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	return s
}

// Period returns the tick duration.
func (s *Scheduler) Period() time.Duration { return s.tick }

// Tick returns the number of completed periods.
func (s *Scheduler) Tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	select {
	case <-s.running:
	default:
		return false
	}
	select {
	case <-s.loopDone:
		return false
	default:
		return true
	}
}

// Pending returns the number of records waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Schedule loads the passive plugin at locator and registers it to fire once
// the tick counter reaches dueTick. An empty id is replaced with a random
// one. The effective id is returned.
func (s *Scheduler) Schedule(ctx context.Context, locator string, dueTick int64, payload map[string]any, id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	closed := s.closed
	_, dup := s.records[id]
	s.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	inst := s.loader.Load(ctx, locator)
	if _, ok := inst.Passive(); !ok {
		err := inst.Err
		if err == nil {
			err = errors.New("handler does not implement activation")
		}
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, locator, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if _, dup := s.records[id]; dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	s.records[id] = &Record{ID: id, Instance: inst, DueTick: dueTick, Payload: payload}
	s.metrics.PassivePending.Add(ctx, 1)
	observe.Logger(ctx).Debug("passive: scheduled", "id", id, "locator", locator, "due_tick", dueTick, "tick", s.ticks)
	return id, nil
}

// ScheduleAfter schedules locator to fire after delay, rounded up to whole
// ticks from the current counter.
func (s *Scheduler) ScheduleAfter(ctx context.Context, locator string, delay time.Duration, payload map[string]any, id string) (string, error) {
	return s.Schedule(ctx, locator, s.Tick()+s.TicksFor(delay), payload, id)
}

// TicksFor converts d to a whole number of ticks, rounding up.
func (s *Scheduler) TicksFor(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(d) / float64(s.tick)))
}

// ScheduleStartup schedules each locator at the first_event tick declared by
// its manifest. Failures are logged and skipped.
func (s *Scheduler) ScheduleStartup(ctx context.Context, locators []string) int {
	n := 0
	for _, loc := range locators {
		log := observe.Logger(ctx).With("locator", loc)
		m, err := s.loader.Manifest(loc)
		if err != nil {
			log.Warn("passive: startup module skipped", "err", err)
			continue
		}
		if !m.HasFirstEvent {
			log.Warn("passive: startup module has no first_event")
			continue
		}
		if _, err := s.Schedule(ctx, loc, m.FirstEvent, nil, ""); err != nil {
			log.Warn("passive: startup module skipped", "err", err)
			continue
		}
		n++
	}
	return n
}

// Cancel removes the record with id. It reports whether a pending record was
// removed; false is the normal result for records that already fired.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	s.metrics.PassivePending.Add(context.Background(), -1)
	return true
}

// Lookup returns a copy of the pending record with id.
func (s *Scheduler) Lookup(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Run ticks until ctx is cancelled or [Scheduler.Close] is called. It must be
// called at most once.
func (s *Scheduler) Run(ctx context.Context) error {
	close(s.running)
	defer close(s.loopDone)

	t := time.NewTicker(s.tick)
	defer t.Stop()
	observe.Logger(ctx).Info("passive: scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-t.C:
			s.step(ctx)
		}
	}
}

// step advances the counter and fires every due record.
func (s *Scheduler) step(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	now := s.ticks
	var due []*Record
	for id, r := range s.records {
		if r.DueTick <= now {
			due = append(due, r)
			delete(s.records, id)
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.metrics.PassivePending.Add(ctx, -int64(len(due)))
	slices.SortFunc(due, func(a, b *Record) int { return cmp.Compare(a.DueTick, b.DueTick) })
	for _, r := range due {
		s.fire(ctx, r)
	}
}

// fire runs one activation on its own goroutine.
func (s *Scheduler) fire(ctx context.Context, r *Record) {
	a := &activation{rec: r, done: make(chan struct{})}
	s.active.Store(a, struct{}{})
	s.inflight.Add(1)

	actCtx, link := observe.Linked(ctx)
	go func() {
		defer s.inflight.Done()
		defer s.active.Delete(a)
		defer close(a.done)

		runCtx, cancel := context.WithCancel(actCtx)
		defer cancel()
		stop := context.AfterFunc(s.runCtx, cancel)
		defer stop()

		runCtx, span := observe.StartSpan(runCtx, "passive.activate", link)
		defer span.End()
		log := observe.Logger(runCtx).With("id", r.ID, "locator", r.Instance.Locator())

		status := "ok"
		defer func() {
			if p := recover(); p != nil {
				status = "panic"
				log.Error("passive: activation panicked", "panic", p)
			}
			s.metrics.RecordPassiveActivation(runCtx, r.Instance.Locator(), status)
		}()

		h, _ := r.Instance.Passive()
		log.Debug("passive: activating")
		if err := h.Activate(runCtx, plugin.Activation{ID: r.ID, Payload: r.Payload, Scheduler: s}); err != nil {
			status = "error"
			span.RecordError(err)
			log.Warn("passive: activation failed", "err", err)
		}
	}()
}

// Close stops the tick loop and waits for in-flight activations. Each one
// gets its plugin's dispose timeout before its context is cancelled; ctx
// bounds the total wait.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	dropped := len(s.records)
	clear(s.records)
	s.mu.Unlock()
	if dropped > 0 {
		s.metrics.PassivePending.Add(ctx, -int64(dropped))
	}
	s.stopOnce.Do(func() { close(s.stop) })

	select {
	case <-s.running:
		<-s.loopDone
	default:
	}

	var wg sync.WaitGroup
	s.active.Range(func(k, _ any) bool {
		a := k.(*activation)
		wg.Add(1)
		go func() {
			defer wg.Done()
			t := time.NewTimer(a.rec.Instance.DisposeTimeout())
			defer t.Stop()
			select {
			case <-a.done:
			case <-t.C:
				observe.Logger(ctx).Warn("passive: activation exceeded dispose timeout", "id", a.rec.ID, "locator", a.rec.Instance.Locator())
			case <-ctx.Done():
			}
		}()
		return true
	})
	wg.Wait()
	s.runCancel()

	done := make(chan struct{})
	go func() { s.inflight.Wait(); close(done) }()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("passive: close: %w", ctx.Err())
	}
}

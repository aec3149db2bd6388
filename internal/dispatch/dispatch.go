// Package dispatch routes a recognised voice command to the active plugins.
//
// A command is first checked for cancel words and stop phrases. Otherwise it
// is split on the split keywords ("turn on the lamp break what time is it")
// and every part trickles through the valid active plugins in order until
// one of them accepts it. Plugins declaring manifest keywords are only
// offered parts that mention one of them, literally or phonetically.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/hearth/internal/dispatch/phonetic"
	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/speak"
)

// Default phrase lists.
var (
	DefaultCancelWords   = []string{"stop", "cancel", "go away", "quit", "no thanks", "sleep"}
	DefaultStopCommands  = []string{"goodnight", "good night", "freeze all motor functions", "turn yourself off", "shutdown", "deactivate"}
	DefaultSplitKeywords = []string{"break", "brake"}
)

// Spoken confirmations.
const (
	CancelPrompt = "Going back to sleep."
	StopPrompt   = "Understood. Shutting down."
)

// Outcome classifies a dispatched command.
type Outcome string

const (
	// OutcomeHandled means every part of the command was accepted.
	OutcomeHandled Outcome = "handled"
	// OutcomePartial means some parts were accepted and some were not.
	OutcomePartial Outcome = "partial"
	// OutcomeUnhandled means no plugin accepted any part.
	OutcomeUnhandled Outcome = "unhandled"
	// OutcomeCancelled means the user aborted with a cancel word.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeStop means the user asked the server to shut down.
	OutcomeStop Outcome = "stop"
)

// Result describes what happened to one command.
type Result struct {
	Outcome Outcome

	// Handlers lists the locator that accepted each part, "" for parts
	// nobody accepted.
	Handlers []string

	// Err joins the errors plugins returned while handling.
	Err error
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithScheduler makes sched available to plugins through [plugin.Command].
func WithScheduler(sched plugin.Scheduler) Option {
	return func(d *Dispatcher) { d.scheduler = sched }
}

// WithStatus gates plugins that require the home server on status.Connected.
func WithStatus(status homeserver.API) Option {
	return func(d *Dispatcher) { d.status = status }
}

// WithOnlineCheck gates plugins that require internet access.
func WithOnlineCheck(online func() bool) Option {
	return func(d *Dispatcher) { d.online = online }
}

// WithStopFunc is called after the stop prompt was spoken.
func WithStopFunc(stop func()) Option {
	return func(d *Dispatcher) { d.stop = stop }
}

// WithMatcher replaces the keyword matcher.
func WithMatcher(m *phonetic.Matcher) Option {
	return func(d *Dispatcher) { d.matcher = m }
}

// WithPhrases overrides the cancel, stop and split phrase lists. Nil slices
// keep the defaults.
func WithPhrases(cancel, stop, split []string) Option {
	return func(d *Dispatcher) {
		if cancel != nil {
			d.cancelWords = cancel
		}
		if stop != nil {
			d.stopCommands = stop
		}
		if split != nil {
			d.splitKeywords = split
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	speaker   speak.Speaker
	scheduler plugin.Scheduler
	status    homeserver.API
	online    func() bool
	stop      func()
	matcher   *phonetic.Matcher
	metrics   *observe.Metrics

	cancelWords   []string
	stopCommands  []string
	splitKeywords []string

	mu        sync.RWMutex
	instances []*plugin.Instance
}

// New returns a dispatcher offering commands to instances in order. Invalid
// and passive instances are skipped.
func New(speaker speak.Speaker, instances []*plugin.Instance, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		speaker:       speaker,
		cancelWords:   DefaultCancelWords,
		stopCommands:  DefaultStopCommands,
		splitKeywords: DefaultSplitKeywords,
	}
	for _, o := range opts {
		o(d)
	}
	if d.matcher == nil {
		d.matcher = phonetic.New()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	d.SetInstances(instances)
	return d
}

// SetInstances replaces the routed plugins.
func (d *Dispatcher) SetInstances(instances []*plugin.Instance) {
	active := make([]*plugin.Instance, 0, len(instances))
	for _, inst := range instances {
		if _, ok := inst.Active(); ok {
			active = append(active, inst)
		}
	}
	d.mu.Lock()
	d.instances = active
	d.mu.Unlock()
}

// Instances returns the routed plugins.
func (d *Dispatcher) Instances() []*plugin.Instance {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.instances)
}

// Dispatch handles one recognised command.
func (d *Dispatcher) Dispatch(ctx context.Context, command string) Result {
	ctx, span := observe.StartSpan(ctx, "dispatch.command")
	defer span.End()
	log := observe.Logger(ctx)

	command = strings.ToLower(strings.TrimSpace(command))
	if command == "" {
		return Result{Outcome: OutcomeUnhandled}
	}
	if err := ctx.Err(); err != nil {
		return Result{Outcome: OutcomeUnhandled, Err: fmt.Errorf("dispatch: %w", err)}
	}

	if containsAny(command, d.cancelWords) {
		log.Debug("dispatch: cancelled by user", "command", command)
		d.metrics.RecordCommand(ctx, "", string(OutcomeCancelled))
		if err := speak.Say(ctx, d.speaker, CancelPrompt); err != nil {
			log.Warn("dispatch: cancel prompt failed", "err", err)
		}
		return Result{Outcome: OutcomeCancelled}
	}

	if containsAny(command, d.stopCommands) {
		log.Info("dispatch: stop requested", "command", command)
		d.metrics.RecordCommand(ctx, "", string(OutcomeStop))
		if err := speak.Say(ctx, d.speaker, StopPrompt); err != nil {
			log.Warn("dispatch: stop prompt failed", "err", err)
		}
		if d.stop != nil {
			d.stop()
		}
		return Result{Outcome: OutcomeStop}
	}

	parts := d.split(command)
	res := Result{Handlers: make([]string, len(parts))}
	var errs []error
	accepted := 0
	for i, part := range parts {
		locator, err := d.route(ctx, part)
		res.Handlers[i] = locator
		if locator != "" {
			accepted++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	switch {
	case accepted == 0:
		res.Outcome = OutcomeUnhandled
	case accepted < len(parts):
		res.Outcome = OutcomePartial
	default:
		res.Outcome = OutcomeHandled
	}
	if len(errs) > 0 {
		res.Err = errors.Join(errs...)
	}
	log.Debug("dispatch: done", "command", command, "outcome", res.Outcome, "handlers", res.Handlers)
	return res
}

// route offers part to each eligible instance and returns the locator of the
// first one that accepted it. A plugin failing without accepting does not stop
// the trickle; its error is still reported.
func (d *Dispatcher) route(ctx context.Context, part string) (string, error) {
	log := observe.Logger(ctx)
	cmd := plugin.Command{Text: part, Scheduler: d.scheduler}
	var errs []error
	for _, inst := range d.Instances() {
		if !d.eligible(inst) {
			continue
		}
		if kws := inst.Manifest.Keywords; len(kws) > 0 {
			kw, score, ok := d.matcher.Find(part, kws)
			if !ok {
				continue
			}
			log.Debug("dispatch: keyword matched", "locator", inst.Locator(), "keyword", kw, "score", score)
		}
		handler, _ := inst.Active()
		handled, err := handle(ctx, handler, cmd)
		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Error("dispatch: plugin failed", "locator", inst.Locator(), "err", err)
			errs = append(errs, fmt.Errorf("dispatch: %s: %w", inst.Locator(), err))
		}
		if handled {
			d.metrics.RecordCommand(ctx, inst.Locator(), outcome)
			return inst.Locator(), errors.Join(errs...)
		}
	}
	log.Debug("dispatch: no plugin accepted command", "command", part)
	d.metrics.RecordCommand(ctx, "", string(OutcomeUnhandled))
	return "", errors.Join(errs...)
}

func (d *Dispatcher) eligible(inst *plugin.Instance) bool {
	if inst.Manifest.RequireWebServer && (d.status == nil || !d.status.Connected()) {
		return false
	}
	if inst.Manifest.RequireOnline && d.online != nil && !d.online() {
		return false
	}
	return true
}

// handle runs the plugin and converts a panic into an error.
func handle(ctx context.Context, a plugin.Active, cmd plugin.Command) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Handle(ctx, cmd)
}

// split breaks command at every split keyword and drops empty parts.
func (d *Dispatcher) split(command string) []string {
	parts := []string{command}
	for _, kw := range d.splitKeywords {
		var next []string
		for _, p := range parts {
			next = append(next, splitWord(p, kw)...)
		}
		parts = next
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{command}
	}
	return out
}

// splitWord splits s at whole-word occurrences of w.
func splitWord(s, w string) []string {
	var parts []string
	var cur []string
	for _, f := range strings.Fields(s) {
		if f == w {
			parts = append(parts, strings.Join(cur, " "))
			cur = cur[:0]
			continue
		}
		cur = append(cur, f)
	}
	return append(parts, strings.Join(cur, " "))
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

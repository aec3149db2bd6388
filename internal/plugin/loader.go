package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/hearth/internal/observe"
)

// LoaderOption customises a [Loader].
type LoaderOption func(*Loader)

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) LoaderOption {
	return func(l *Loader) { l.metrics = m }
}

// Loader builds plugin instances from manifests and registered factories.
type Loader struct {
	dir      string
	registry *Registry
	deps     Deps
	metrics  *observe.Metrics
}

// NewLoader returns a loader reading manifests below dir. deps holds every
// collaborator available to plugins.
func NewLoader(dir string, reg *Registry, deps Deps, opts ...LoaderOption) *Loader {
	l := &Loader{dir: dir, registry: reg, deps: deps}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Manifest reads the manifest for locator without building the plugin.
func (l *Loader) Manifest(locator string) (Manifest, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return Manifest{}, err
	}
	return ReadManifest(l.dir, loc)
}

// Load builds the plugin at locator. It never returns nil; failures are
// logged and reported through Instance.Valid and Instance.Err.
func (l *Loader) Load(ctx context.Context, locator string) *Instance {
	inst := &Instance{Manifest: Manifest{Locator: Locator{Raw: locator}}}
	log := observe.Logger(ctx).With("locator", locator)

	if err := l.load(inst); err != nil {
		inst.Err = err
		log.Error("plugin: load failed", "err", err)
		l.metrics.RecordPluginLoad(ctx, locator, false)
		return inst
	}
	inst.Valid = true
	log.Debug("plugin: loaded", "needs", inst.Manifest.Needs)
	l.metrics.RecordPluginLoad(ctx, locator, true)
	return inst
}

func (l *Loader) load(inst *Instance) error {
	m, err := l.Manifest(inst.Locator())
	if err != nil {
		return err
	}
	inst.Manifest = m

	f, ok := l.registry.Lookup(m.Locator.Raw)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, m.Locator.Raw)
	}
	if f.Needs != m.Needs {
		return fmt.Errorf("plugin: manifest declares %s but factory needs %s", m.Needs, f.Needs)
	}
	deps, err := l.pick(m.Needs)
	if err != nil {
		return err
	}
	h, err := construct(f, deps)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.New("plugin: factory returned nil handler")
	}
	inst.Handler = h
	return nil
}

// pick returns only the declared collaborators. A declared collaborator
// that is unavailable fails the load.
func (l *Loader) pick(n Needs) (Deps, error) {
	var d Deps
	var errs []error
	if n.Has(NeedSpeak) {
		if d.Speaker = l.deps.Speaker; d.Speaker == nil {
			errs = append(errs, errors.New("speaker unavailable"))
		}
	}
	if n.Has(NeedListen) {
		if d.Listener = l.deps.Listener; d.Listener == nil {
			errs = append(errs, errors.New("listener unavailable"))
		}
	}
	if n.Has(NeedStatus) {
		if d.Status = l.deps.Status; d.Status == nil {
			errs = append(errs, errors.New("status client unavailable"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Deps{}, fmt.Errorf("plugin: %w", err)
	}
	return d, nil
}

func construct(f Factory, d Deps) (h any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin: factory panicked: %v", r)
		}
	}()
	h, err = f.New(d)
	if err != nil {
		return nil, fmt.Errorf("plugin: construct: %w", err)
	}
	return h, nil
}

// LoadAll loads every locator in order. Invalid instances are included.
func (l *Loader) LoadAll(ctx context.Context, locators []string) []*Instance {
	out := make([]*Instance, 0, len(locators))
	for _, loc := range locators {
		out = append(out, l.Load(ctx, loc))
	}
	return out
}

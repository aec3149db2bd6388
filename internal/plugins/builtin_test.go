package plugins

import (
	"context"
	"slices"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	hsmock "github.com/MrWong99/hearth/internal/homeserver/mock"
	listenmock "github.com/MrWong99/hearth/internal/listen/mock"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins/alarm"
	"github.com/MrWong99/hearth/internal/plugins/timer"
	speakmock "github.com/MrWong99/hearth/internal/speak/mock"
)

// manifestDir holds the manifests shipped with the repository.
const manifestDir = "../../plugins"

func newLoader(t *testing.T, reg *plugin.Registry) *plugin.Loader {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	deps := plugin.Deps{
		Speaker:  &speakmock.Speaker{},
		Listener: &listenmock.Listener{},
		Status:   &hsmock.API{},
	}
	return plugin.NewLoader(manifestDir, reg, deps, plugin.WithMetrics(m))
}

func TestBuiltinsLoadFromShippedManifests(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	RegisterBuiltins(reg)

	loader := newLoader(t, reg)

	locators := reg.Locators()
	if len(locators) != 4 {
		t.Fatalf("registered %d plugins, want 4", len(locators))
	}
	for _, inst := range loader.LoadAll(context.Background(), locators) {
		if !inst.Valid {
			t.Errorf("%s invalid: %v", inst.Locator(), inst.Err)
		}
	}
}

func TestBuiltinRoles(t *testing.T) {
	t.Parallel()
	reg := plugin.NewRegistry()
	RegisterBuiltins(reg)
	loader := newLoader(t, reg)

	for _, loc := range DefaultActive {
		inst := loader.Load(context.Background(), loc)
		if _, ok := inst.Active(); !ok {
			t.Errorf("%s is not active", loc)
		}
		if !inst.Manifest.InitOnStartup || len(inst.Manifest.Keywords) == 0 {
			t.Errorf("%s manifest = %+v", loc, inst.Manifest)
		}
	}
	for _, loc := range []string{timer.Locator, alarm.Locator} {
		inst := loader.Load(context.Background(), loc)
		if _, ok := inst.Passive(); !ok {
			t.Errorf("%s is not passive", loc)
		}
		if slices.Contains(DefaultActive, loc) {
			t.Errorf("%s listed as active", loc)
		}
	}
}

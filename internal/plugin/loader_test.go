package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	hsmock "github.com/MrWong99/hearth/internal/homeserver/mock"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/observe"
	speakmock "github.com/MrWong99/hearth/internal/speak/mock"
)

const speakStatusYAML = `
require_online: "False"
require_web_server: "True"
dispose_timeout: 5
init_on_startup: "True"
require_speech_speak: "True"
require_speech_listen: "False"
require_web_server_status: "True"
keywords: [Thermostat, " weather "]
`

const timerJSON = `{
  "require_online": "False",
  "require_web_server": "False",
  "dispose_timeout": "3",
  "init_on_startup": "False",
  "require_speech_speak": "True",
  "require_speech_listen": "False",
  "require_web_server_status": "False",
  "first_event": 4
}`

type fakeListener struct{}

func (fakeListener) ListenOnce(context.Context, listen.Request) (string, bool) { return "", false }

// recorder captures the deps handed to a factory.
type recorder struct{ deps Deps }

func writeManifest(t *testing.T, dir, folder, name, body string) {
	t.Helper()
	p := filepath.Join(dir, folder)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func allDeps() Deps {
	return Deps{Speaker: &speakmock.Speaker{}, Listener: fakeListener{}, Status: &hsmock.API{}}
}

func newTestLoader(t *testing.T, dir string, reg *Registry, deps Deps) *Loader {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return NewLoader(dir, reg, deps, WithMetrics(m))
}

func recordingFactory(needs Needs) Factory {
	return Factory{Needs: needs, New: func(d Deps) (any, error) { return &recorder{deps: d}, nil }}
}

func TestParseLocator(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		folder  string
		file    string
		class   string
		wantErr bool
	}{
		{in: "./home_automation/home_automation.HomeAutomation", folder: "./home_automation", file: "home_automation", class: "HomeAutomation"},
		{in: "./simple_utilities/timer_utility/timer_utility.TimerUtility", folder: "./simple_utilities/timer_utility", file: "timer_utility", class: "TimerUtility"},
		{in: "module.Class", folder: ".", file: "module", class: "Class"},
		{in: "no_class", wantErr: true},
		{in: "./folder/file.", wantErr: true},
		{in: "./folder/.Class", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLocator(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLocator(%q) = %+v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLocator(%q): %v", tt.in, err)
			continue
		}
		if got.Folder != tt.folder || got.File != tt.file || got.Class != tt.class {
			t.Errorf("ParseLocator(%q) = %+v", tt.in, got)
		}
	}
}

func TestParseManifest_YAML(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(Locator{Raw: "x.Y"}, []byte(speakStatusYAML))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.RequireOnline || !m.RequireWebServer || !m.InitOnStartup {
		t.Errorf("flags = %+v", m)
	}
	if m.DisposeTimeoutSeconds != 5 {
		t.Errorf("DisposeTimeoutSeconds = %d, want 5", m.DisposeTimeoutSeconds)
	}
	if m.Needs != NeedSpeak|NeedStatus {
		t.Errorf("Needs = %s, want speak|status", m.Needs)
	}
	if strings.Join(m.Keywords, ",") != "thermostat,weather" {
		t.Errorf("Keywords = %v", m.Keywords)
	}
	if m.HasFirstEvent {
		t.Error("HasFirstEvent should be false")
	}
}

func TestParseManifest_JSON(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(Locator{Raw: "x.Y"}, []byte(timerJSON))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Needs != NeedSpeak {
		t.Errorf("Needs = %s, want speak", m.Needs)
	}
	if m.DisposeTimeoutSeconds != 3 {
		t.Errorf("quoted dispose_timeout = %d, want 3", m.DisposeTimeoutSeconds)
	}
	if !m.HasFirstEvent || m.FirstEvent != 4 {
		t.Errorf("FirstEvent = %d (%v), want 4", m.FirstEvent, m.HasFirstEvent)
	}
}

func TestParseManifest_Errors(t *testing.T) {
	t.Parallel()
	missing := strings.Replace(speakStatusYAML, `require_speech_listen: "False"`, "", 1)
	missing = strings.Replace(missing, "dispose_timeout: 5", "", 1)
	_, err := ParseManifest(Locator{Raw: "x.Y"}, []byte(missing))
	if err == nil {
		t.Fatal("expected error for missing keys")
	}
	for _, want := range []string{"require_speech_listen", "dispose_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}

	bad := strings.Replace(speakStatusYAML, `require_online: "False"`, `require_online: "maybe"`, 1)
	if _, err := ParseManifest(Locator{Raw: "x.Y"}, []byte(bad)); err == nil {
		t.Error("expected error for non-boolean flag")
	}
	if _, err := ParseManifest(Locator{Raw: "x.Y"}, []byte("{not yaml")); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestLoad_InjectsOnlyDeclaredDeps(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, "home", "module.yaml", speakStatusYAML)
	reg := NewRegistry()
	reg.Register("./home/home.Home", recordingFactory(NeedSpeak|NeedStatus))

	inst := newTestLoader(t, dir, reg, allDeps()).Load(context.Background(), "./home/home.Home")
	if !inst.Valid {
		t.Fatalf("instance invalid: %v", inst.Err)
	}
	rec := inst.Handler.(*recorder)
	if rec.deps.Speaker == nil || rec.deps.Status == nil {
		t.Error("declared collaborators missing")
	}
	if rec.deps.Listener != nil {
		t.Error("undeclared listener was injected")
	}
	if inst.Locator() != "./home/home.Home" || inst.DisposeTimeout().Seconds() != 5 {
		t.Errorf("instance = %+v", inst)
	}
}

func TestLoad_Failures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, "home", "module.yaml", speakStatusYAML)
	writeManifest(t, dir, "broken", "module.yaml", "require_online: yes please")

	tests := []struct {
		name    string
		locator string
		factory *Factory
		deps    Deps
		wantErr error
	}{
		{name: "bad locator", locator: "nothing"},
		{name: "no manifest", locator: "./absent/absent.X", wantErr: ErrNoManifest},
		{name: "malformed manifest", locator: "./broken/broken.X", factory: &Factory{New: func(Deps) (any, error) { return 1, nil }}},
		{name: "not registered", locator: "./home/home.Home", wantErr: ErrNotRegistered},
		{name: "needs mismatch", locator: "./home/home.Home", factory: ptr(recordingFactory(NeedSpeak | NeedListen | NeedStatus))},
		{name: "missing collaborator", locator: "./home/home.Home", factory: ptr(recordingFactory(NeedSpeak | NeedStatus)), deps: Deps{Speaker: &speakmock.Speaker{}}},
		{name: "factory error", locator: "./home/home.Home", factory: &Factory{Needs: NeedSpeak | NeedStatus, New: func(Deps) (any, error) { return nil, errors.New("nope") }}},
		{name: "factory panic", locator: "./home/home.Home", factory: &Factory{Needs: NeedSpeak | NeedStatus, New: func(Deps) (any, error) { panic("boom") }}},
		{name: "nil handler", locator: "./home/home.Home", factory: &Factory{Needs: NeedSpeak | NeedStatus, New: func(Deps) (any, error) { return nil, nil }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry()
			if tt.factory != nil {
				reg.Register(tt.locator, *tt.factory)
			}
			deps := tt.deps
			if deps == (Deps{}) {
				deps = allDeps()
			}
			inst := newTestLoader(t, dir, reg, deps).Load(context.Background(), tt.locator)
			if inst == nil {
				t.Fatal("Load returned nil")
			}
			if inst.Valid || inst.Err == nil {
				t.Fatalf("Valid = %v, Err = %v; want invalid with error", inst.Valid, inst.Err)
			}
			if tt.wantErr != nil && !errors.Is(inst.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", inst.Err, tt.wantErr)
			}
			if _, ok := inst.Active(); ok {
				t.Error("invalid instance exposed as Active")
			}
		})
	}
}

type activeHandler struct{}

func (activeHandler) Handle(context.Context, Command) (bool, error) { return true, nil }

type passiveHandler struct{}

func (passiveHandler) Activate(context.Context, Activation) error { return nil }

func TestLoadAll_AndRoles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeManifest(t, dir, "home", "module.yaml", speakStatusYAML)
	writeManifest(t, dir, "timer", "module.json", timerJSON)
	reg := NewRegistry()
	reg.Register("./home/home.Home", Factory{Needs: NeedSpeak | NeedStatus, New: func(Deps) (any, error) { return activeHandler{}, nil }})
	reg.Register("./timer/timer.Timer", Factory{Needs: NeedSpeak, New: func(Deps) (any, error) { return passiveHandler{}, nil }})

	insts := newTestLoader(t, dir, reg, allDeps()).LoadAll(context.Background(),
		[]string{"./home/home.Home", "./timer/timer.Timer", "./gone/gone.Gone"})
	if len(insts) != 3 {
		t.Fatalf("LoadAll returned %d instances, want 3", len(insts))
	}
	if _, ok := insts[0].Active(); !ok {
		t.Error("home should be active")
	}
	if _, ok := insts[0].Passive(); ok {
		t.Error("home should not be passive")
	}
	if _, ok := insts[1].Passive(); !ok {
		t.Error("timer should be passive")
	}
	if insts[2].Valid {
		t.Error("unknown plugin should be invalid")
	}
	if got := reg.Locators(); strings.Join(got, ",") != "./home/home.Home,./timer/timer.Timer" {
		t.Errorf("Locators = %v", got)
	}
}

func TestNeedsString(t *testing.T) {
	t.Parallel()
	if got := Needs(0).String(); got != "none" {
		t.Errorf("String = %q", got)
	}
	if got := (NeedSpeak | NeedListen | NeedStatus).String(); got != "speak|listen|status" {
		t.Errorf("String = %q", got)
	}
}

func ptr[T any](v T) *T { return &v }

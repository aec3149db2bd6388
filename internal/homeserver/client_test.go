package homeserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/resilience"
)

const actionStatesJSON = `{"lastUpdate": 1700, "1": {"5250": "22.50_40.00"}, "2": {"51": 0, "5251": "27.70_42.20", "60": 1}}`

const homeStatusJSON = `{
  "lastUpdate": 900,
  "serverDisabled": "false",
  "moduleInputDisabled": true,
  "modulesCount": 7,
  "weatherData": {"main": {"temp": 71.6, "temp_max": 75.2, "temp_min": 60.1, "humidity": 40}, "weather": [{"description": "clear sky"}]},
  "moduleInput": {"2": {"5251": {"onHeat": 70, "offHeat": 68}}}
}`

// fakeServer mimics the home-automation web server.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	bodies   []string
	status   int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.bodies = append(f.bodies, string(body))
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	switch {
	case r.URL.Path == "/actionStates/1700", r.URL.Path == "/homeStatus/900":
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, "/actionStates/"):
		_, _ = io.WriteString(w, actionStatesJSON)
	case strings.HasPrefix(r.URL.Path, "/homeStatus/"):
		_, _ = io.WriteString(w, homeStatusJSON)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeServer) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(srv.URL+"/", append([]Option{WithMetrics(m)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, fs
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestQueryActionStates_CachesOnNoContent(t *testing.T) {
	t.Parallel()
	c, fs := newTestClient(t)
	ctx := context.Background()

	if c.Connected() {
		t.Error("Connected before first query")
	}
	states, err := c.QueryActionStates(ctx)
	if err != nil {
		t.Fatalf("QueryActionStates: %v", err)
	}
	if states.LastUpdate != 1700 {
		t.Errorf("LastUpdate = %d, want 1700", states.LastUpdate)
	}
	if v, ok := states.IntState(2, 60); !ok || v != 1 {
		t.Errorf("IntState(2, 60) = %d, %v; want 1, true", v, ok)
	}
	if temp, ok := states.Temperature(2, 5251); !ok || temp != 27.7 {
		t.Errorf("Temperature(2, 5251) = %v, %v", temp, ok)
	}

	again, err := c.QueryActionStates(ctx)
	if err != nil {
		t.Fatalf("second QueryActionStates: %v", err)
	}
	if again.LastUpdate != 1700 {
		t.Error("204 response should keep the cached table")
	}
	want := []string{"GET /actionStates/0", "GET /actionStates/1700"}
	if got := fs.Requests(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", got, want)
	}
	if !c.Connected() {
		t.Error("Connected should be true after a successful query")
	}
}

func TestQueryHomeStatus(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	hs, err := c.QueryHomeStatus(context.Background())
	if err != nil {
		t.Fatalf("QueryHomeStatus: %v", err)
	}
	if hs.ServerDisabled || !hs.ModuleInputDisabled {
		t.Errorf("flags = %v/%v, want false/true", hs.ServerDisabled, hs.ModuleInputDisabled)
	}
	if hs.ModulesCount != 7 {
		t.Errorf("ModulesCount = %d", hs.ModulesCount)
	}
	if hs.WeatherData == nil || hs.WeatherData.Description() != "clear sky" {
		t.Errorf("WeatherData = %+v", hs.WeatherData)
	}
	if got := hs.ModuleInput["2"]["5251"]["onHeat"]; got != float64(70) {
		t.Errorf("onHeat = %v", got)
	}
	if cached, ok := c.HomeStatus(); !ok || cached.LastUpdate != 900 {
		t.Errorf("cached home status = %+v, %v", cached, ok)
	}
}

func TestSetLED(t *testing.T) {
	t.Parallel()
	c, fs := newTestClient(t)
	ctx := context.Background()
	if err := c.SetLED(ctx, true, 2, 51); err != nil {
		t.Fatalf("SetLED on: %v", err)
	}
	if err := c.SetLED(ctx, false, 2, 51); err != nil {
		t.Fatalf("SetLED off: %v", err)
	}
	want := "GET /moduleToggle/2/51/1,GET /moduleToggle/2/51/0"
	if got := strings.Join(fs.Requests(), ","); got != want {
		t.Errorf("requests = %s, want %s", got, want)
	}
}

func TestGenerateAndExecutePostQuery(t *testing.T) {
	t.Parallel()
	c, fs := newTestClient(t)
	payload := map[string]any{"roomId": 2, "newModuleInput": map[string]any{"5251": map[string]int{"onHeat": 72, "offHeat": 70}}}
	if err := c.GenerateAndExecutePostQuery(context.Background(), payload); err != nil {
		t.Fatalf("post: %v", err)
	}
	if got := fs.Requests(); len(got) != 1 || got[0] != "POST /moduleInputModify" {
		t.Fatalf("requests = %v", got)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(fs.bodies[0]), &decoded); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if decoded["roomId"] != float64(2) {
		t.Errorf("roomId = %v", decoded["roomId"])
	}
}

func TestGenerateToggleQuery(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	if _, err := c.QueryActionStates(context.Background()); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		command      string
		room, action int
		want         string
	}{
		{"turn the lamp off", 2, 60, "/moduleToggle/2/60/0"},
		{"turn the lamp on", 2, 60, "/moduleToggle/2/60/1"},
		{"activate the lamp", 2, 60, "/moduleToggle/2/60/1"},
		{"deactivate the lamp", 2, 60, "/moduleToggle/2/60/0"},
		{"toggle the lamp", 2, 60, "/moduleToggle/2/60/0"},   // currently on
		{"toggle the speaker", 2, 51, "/moduleToggle/2/51/1"}, // currently off
		{"virtual lamp off", 2, 60, "/moduleVirtualToggle/2/60/0"},
	}
	for _, tt := range tests {
		got, err := c.GenerateToggleQuery(tt.command, tt.room, tt.action, 1, 0)
		if err != nil {
			t.Errorf("%q: %v", tt.command, err)
			continue
		}
		if !strings.HasSuffix(got, tt.want) {
			t.Errorf("%q = %s, want suffix %s", tt.command, got, tt.want)
		}
	}
}

func TestGenerateToggleQuery_NoStates(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	if _, err := c.GenerateToggleQuery("toggle the lamp", 2, 60, 1, 0); err == nil {
		t.Fatal("expected error without cached action states")
	}
}

func TestBreakerOpensOnFailures(t *testing.T) {
	t.Parallel()
	c, fs := newTestClient(t, WithBreaker(resilience.Config{Name: "test", MaxFailures: 2, ResetTimeout: time.Hour}))
	fs.mu.Lock()
	fs.status = http.StatusInternalServerError
	fs.mu.Unlock()
	ctx := context.Background()

	for range 2 {
		if err := c.ExecuteGetQuery(ctx, c.URL("moduleToggleAll", "1")); !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
		}
	}
	if err := c.ExecuteGetQuery(ctx, c.URL("moduleToggleAll", "1")); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := len(fs.Requests()); n != 2 {
		t.Errorf("server saw %d requests, want 2", n)
	}
	if c.Breaker().State() != resilience.StateOpen {
		t.Errorf("breaker state = %v", c.Breaker().State())
	}
	if _, err := c.QueryActionStates(ctx); err == nil || c.Connected() {
		t.Error("QueryActionStates should fail and mark the client disconnected")
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, ok := c.ActionStates(); !ok {
		t.Error("action states not cached")
	}
	if _, ok := c.HomeStatus(); !ok {
		t.Error("home status not cached")
	}
}

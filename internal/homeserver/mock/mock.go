// Package mock provides a test double for homeserver.API.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MrWong99/hearth/internal/homeserver"
)

// LEDCall records one SetLED invocation.
type LEDCall struct {
	On           bool
	Room, Action int
}

// API is a recording homeserver.API. Fields configure the responses.
type API struct {
	mu sync.Mutex

	States    homeserver.ActionStates
	Status    homeserver.HomeStatus
	QueryErr  error
	ExecErr   error
	Online    bool
	BaseURL   string
	ToggleURL string

	LEDCalls  []LEDCall
	GetCalls  []string
	PostCalls []any
	Refreshes int
}

// Refresh counts the call and returns QueryErr.
func (a *API) Refresh(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Refreshes++
	return a.QueryErr
}

// RefreshCount returns the number of Refresh calls. Thread-safe.
func (a *API) RefreshCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Refreshes
}

func (a *API) QueryActionStates(context.Context) (homeserver.ActionStates, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.States, a.QueryErr
}

func (a *API) QueryHomeStatus(context.Context) (homeserver.HomeStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Status, a.QueryErr
}

func (a *API) ExecuteGetQuery(_ context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetCalls = append(a.GetCalls, url)
	return a.ExecErr
}

func (a *API) GenerateAndExecutePostQuery(_ context.Context, payload any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.PostCalls = append(a.PostCalls, payload)
	return a.ExecErr
}

// GenerateToggleQuery returns ToggleURL if set, otherwise a URL encoding the
// arguments.
func (a *API) GenerateToggleQuery(command string, room, action int, onState, offState int) (string, error) {
	if a.ToggleURL != "" {
		return a.ToggleURL, nil
	}
	state := onState
	if strings.Contains(command, "off") {
		state = offState
	}
	return fmt.Sprintf("%s/moduleToggle/%d/%d/%d", a.BaseURL, room, action, state), nil
}

func (a *API) SetLED(_ context.Context, on bool, room, action int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.LEDCalls = append(a.LEDCalls, LEDCall{On: on, Room: room, Action: action})
	return a.ExecErr
}

func (a *API) URL(segments ...string) string {
	return a.BaseURL + "/" + strings.Join(segments, "/")
}

func (a *API) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Online
}

// LEDs returns a copy of LEDCalls. Thread-safe.
func (a *API) LEDs() []LEDCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]LEDCall(nil), a.LEDCalls...)
}

// Gets returns a copy of GetCalls. Thread-safe.
func (a *API) Gets() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.GetCalls...)
}

var _ homeserver.API = (*API)(nil)

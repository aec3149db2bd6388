// Package homeserver is the status client for the home-automation web
// server. It polls module and home state, toggles modules and drives the
// listening LED.
//
// All calls go through a circuit breaker so an unreachable server costs one
// fast failure instead of a timeout per request while it is down.
package homeserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/resilience"
)

// ErrUnexpectedStatus is wrapped by errors for non-success responses.
var ErrUnexpectedStatus = errors.New("homeserver: unexpected status")

// API is the status client surface consumed by plugins and the listen
// coordinator.
type API interface {
	// QueryActionStates refreshes and returns the module state table. A 204
	// response keeps and returns the cached table.
	QueryActionStates(ctx context.Context) (ActionStates, error)

	// QueryHomeStatus refreshes and returns the home status. A 204 response
	// keeps and returns the cached status.
	QueryHomeStatus(ctx context.Context) (HomeStatus, error)

	// ExecuteGetQuery issues a GET for an absolute URL produced by this
	// client and expects 200.
	ExecuteGetQuery(ctx context.Context, url string) error

	// GenerateAndExecutePostQuery posts payload as JSON to
	// /moduleInputModify and expects 200.
	GenerateAndExecutePostQuery(ctx context.Context, payload any) error

	// GenerateToggleQuery builds the toggle URL for a module from a spoken
	// command.
	GenerateToggleQuery(command string, room, action int, onState, offState int) (string, error)

	// SetLED switches a module, typically the listening indicator.
	SetLED(ctx context.Context, on bool, room, action int) error

	// URL joins path segments onto the server base URL.
	URL(segments ...string) string

	// Connected reports whether the last action state refresh succeeded.
	Connected() bool
}

// Option customises a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithBreaker replaces the default circuit breaker configuration.
func WithBreaker(cfg resilience.Config) Option {
	return func(cl *Client) { cl.breakerCfg = cfg }
}

// WithMetrics overrides the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// Client implements [API] over HTTP. It is safe for concurrent use.
type Client struct {
	base       string
	http       *http.Client
	breakerCfg resilience.Config
	breaker    *resilience.Breaker
	metrics    *observe.Metrics

	mu           sync.RWMutex
	actionStates *ActionStates
	homeStatus   *HomeStatus
	connected    bool
}

var _ API = (*Client)(nil)

// New returns a client for the server at baseURL (e.g.
// "http://192.168.0.197:8080").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("homeserver: base URL must not be empty")
	}
	c := &Client{
		base:       strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 5 * time.Second},
		breakerCfg: resilience.Config{Name: "home_server"},
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.breaker = resilience.New(c.breakerCfg)
	return c, nil
}

// Breaker exposes the client's circuit breaker for readiness checks.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// URL joins path segments onto the base URL.
func (c *Client) URL(segments ...string) string {
	return c.base + "/" + strings.Join(segments, "/")
}

// Connected reports whether the last action state refresh succeeded.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ActionStates returns the cached table without contacting the server.
func (c *Client) ActionStates() (ActionStates, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.actionStates == nil {
		return ActionStates{}, false
	}
	return *c.actionStates, true
}

// HomeStatus returns the cached home status without contacting the server.
func (c *Client) HomeStatus() (HomeStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.homeStatus == nil {
		return HomeStatus{}, false
	}
	return *c.homeStatus, true
}

// QueryActionStates refreshes the module state table.
func (c *Client) QueryActionStates(ctx context.Context) (ActionStates, error) {
	c.mu.RLock()
	var since int64
	if c.actionStates != nil {
		since = c.actionStates.LastUpdate
	}
	c.mu.RUnlock()

	var fresh ActionStates
	changed, err := c.getJSON(ctx, "action_states", c.URL("actionStates", strconv.FormatInt(since, 10)), &fresh)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = err == nil
	if err != nil {
		return ActionStates{}, err
	}
	if changed {
		c.actionStates = &fresh
	}
	if c.actionStates == nil {
		return ActionStates{}, nil
	}
	return *c.actionStates, nil
}

// QueryHomeStatus refreshes the home status.
func (c *Client) QueryHomeStatus(ctx context.Context) (HomeStatus, error) {
	c.mu.RLock()
	var since int64
	if c.homeStatus != nil {
		since = c.homeStatus.LastUpdate
	}
	c.mu.RUnlock()

	var fresh HomeStatus
	changed, err := c.getJSON(ctx, "home_status", c.URL("homeStatus", strconv.FormatInt(since, 10)), &fresh)
	if err != nil {
		return HomeStatus{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if changed {
		c.homeStatus = &fresh
	}
	if c.homeStatus == nil {
		return HomeStatus{}, nil
	}
	return *c.homeStatus, nil
}

// Refresh queries action states and home status concurrently. Errors are
// joined; a partial refresh still updates the cache.
func (c *Client) Refresh(ctx context.Context) error {
	var wg sync.WaitGroup
	var errA, errH error
	wg.Add(2)
	go func() { defer wg.Done(); _, errA = c.QueryActionStates(ctx) }()
	go func() { defer wg.Done(); _, errH = c.QueryHomeStatus(ctx) }()
	wg.Wait()
	return errors.Join(errA, errH)
}

// ExecuteGetQuery issues a GET and expects 200.
func (c *Client) ExecuteGetQuery(ctx context.Context, url string) error {
	_, err := c.do(ctx, "get_query", http.MethodGet, url, nil)
	return err
}

// GenerateAndExecutePostQuery posts payload to /moduleInputModify.
func (c *Client) GenerateAndExecutePostQuery(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("homeserver: encode payload: %w", err)
	}
	_, err = c.do(ctx, "post_query", http.MethodPost, c.URL("moduleInputModify"), body)
	return err
}

// SetLED switches module (room, action) on or off.
func (c *Client) SetLED(ctx context.Context, on bool, room, action int) error {
	state := "0"
	if on {
		state = "1"
	}
	_, err := c.do(ctx, "led", http.MethodGet, c.URL("moduleToggle", strconv.Itoa(room), strconv.Itoa(action), state), nil)
	return err
}

// GenerateToggleQuery builds the toggle URL for a module. "off" or
// "deactivate" selects offState, "on", "activate" or "initialize" selects
// onState, otherwise the cached action state is flipped. Commands mentioning
// "virtual" target the virtual toggle endpoint.
func (c *Client) GenerateToggleQuery(command string, room, action int, onState, offState int) (string, error) {
	endpoint := "moduleToggle"
	if strings.Contains(command, "virtual") {
		endpoint = "moduleVirtualToggle"
	}
	build := func(state int) string {
		return c.URL(endpoint, strconv.Itoa(room), strconv.Itoa(action), strconv.Itoa(state))
	}

	switch {
	case containsWord(command, "off") || strings.Contains(command, "deactivate"):
		return build(offState), nil
	case containsWord(command, "on") || strings.Contains(command, "activate") || strings.Contains(command, "initialize"):
		return build(onState), nil
	}

	states, ok := c.ActionStates()
	if !ok {
		return "", fmt.Errorf("homeserver: no action states to toggle room %d action %d", room, action)
	}
	current, ok := states.IntState(room, action)
	if ok && current == onState {
		return build(offState), nil
	}
	return build(onState), nil
}

// getJSON fetches url into v. changed is false for 204 No Content.
func (c *Client) getJSON(ctx context.Context, op, url string, v any) (changed bool, err error) {
	body, err := c.do(ctx, op, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	if body == nil {
		return false, nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("homeserver: %s: decode: %w", op, err)
	}
	return true, nil
}

// do performs one request through the breaker. It returns the body for 200
// and nil for 204.
func (c *Client) do(ctx context.Context, op, method, url string, payload []byte) ([]byte, error) {
	ctx, span := observe.StartSpan(ctx, "homeserver."+op)
	defer span.End()

	var body []byte
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			return err
		case http.StatusNoContent:
			return nil
		default:
			return fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
		}
	})

	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "circuit_open"
	case err != nil:
		status = "error"
		span.RecordError(err)
	case body == nil:
		status = "unchanged"
	}
	c.metrics.RecordHomeServerRequest(ctx, op, status)
	if err != nil {
		observe.Logger(ctx).Warn("homeserver: request failed", "op", op, "url", url, "err", err)
		return nil, fmt.Errorf("homeserver: %s: %w", op, err)
	}
	return body, nil
}

// containsWord reports whether w occurs in s as a whole word.
func containsWord(s, w string) bool {
	for _, f := range strings.Fields(s) {
		if f == w {
			return true
		}
	}
	return false
}

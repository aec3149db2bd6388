// Package mock provides a scripted listen.Listener for plugin tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearth/internal/listen"
)

// Response is one scripted ListenOnce outcome.
type Response struct {
	Text string
	OK   bool
}

// Listener returns Responses in order; once exhausted it reports ("", false).
type Listener struct {
	mu        sync.Mutex
	Responses []Response
	Requests  []listen.Request
}

// ListenOnce records req and returns the next scripted response.
func (l *Listener) ListenOnce(_ context.Context, req listen.Request) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.Requests)
	l.Requests = append(l.Requests, req)
	if n >= len(l.Responses) {
		return "", false
	}
	return l.Responses[n].Text, l.Responses[n].OK
}

// Calls returns a copy of the recorded requests. Thread-safe.
func (l *Listener) Calls() []listen.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]listen.Request(nil), l.Requests...)
}

var _ listen.Listener = (*Listener)(nil)

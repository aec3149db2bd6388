// Package mock provides a test double for speak.Speaker.
//
//	s := &mock.Speaker{}
//	_ = speak.Say(ctx, s, "Timer finished.")
//	s.Texts() // ["Timer finished."]
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearth/internal/speak"
)

// Speaker records every enqueued event. Blocking events wait for Delay
// before returning; non-blocking ones return immediately.
type Speaker struct {
	mu sync.Mutex

	// Err is returned from every Enqueue call.
	Err error

	// Delay simulates processing time of blocking events.
	Delay time.Duration

	// OnEnqueue, if set, is called with every event before it is recorded.
	OnEnqueue func(speak.Event)

	Events []speak.Event
	closed bool
}

// Enqueue records ev.
func (s *Speaker) Enqueue(ctx context.Context, ev speak.Event) error {
	if s.OnEnqueue != nil {
		s.OnEnqueue(ev)
	}
	s.mu.Lock()
	s.Events = append(s.Events, ev)
	delay, err := s.Delay, s.Err
	s.mu.Unlock()

	if ev.Blocking && delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Texts returns the content of all text events in order. Thread-safe.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.Events {
		if ev.Kind == speak.KindText {
			out = append(out, ev.Content)
		}
	}
	return out
}

// Kinds returns the kind of every event in order. Thread-safe.
func (s *Speaker) Kinds() []speak.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speak.Kind, len(s.Events))
	for i, ev := range s.Events {
		out[i] = ev.Kind
	}
	return out
}

// Close marks the speaker closed.
func (s *Speaker) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called. Thread-safe.
func (s *Speaker) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ speak.Speaker = (*Speaker)(nil)

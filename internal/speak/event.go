// Package speak owns the single voice of the assistant.
//
// A [Coordinator] serialises speak and sound requests from every producer
// (command handlers, passive activations, the listen coordinator) into one
// FIFO queue. A single processing goroutine drains the queue: Text events go
// to an out-of-process synthesis worker, all other kinds are rendered by the
// local [audio.Player]. That goroutine is the only user of the worker channel
// and of the player.
package speak

import (
	"context"
	"errors"
)

// Kind selects how an [Event] is rendered.
type Kind int

const (
	// KindText speaks Event.Content through the synthesis worker.
	KindText Kind = iota
	// KindStartup plays the startup sound.
	KindStartup
	// KindShutdown plays the shutdown sound.
	KindShutdown
	// KindChime plays the listening cue.
	KindChime
	// KindTimer plays the timer sound.
	KindTimer
	// KindAlarm plays the alarm sound.
	KindAlarm
)

// String returns the kind name. Sound kinds use the same names as the
// speak.sounds configuration keys.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindStartup:
		return "startup"
	case KindShutdown:
		return "shutdown"
	case KindChime:
		return "chime"
	case KindTimer:
		return "timer"
	case KindAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// Event is one unit of work for the [Coordinator].
type Event struct {
	Kind    Kind
	Content string

	// Blocking makes Enqueue return only after this event was processed.
	Blocking bool
}

// Text returns a non-blocking text event.
func Text(s string) Event { return Event{Kind: KindText, Content: s} }

// Sound returns a non-blocking sound event of kind k.
func Sound(k Kind) Event { return Event{Kind: k} }

// Sync returns a copy of e with Blocking set.
func (e Event) Sync() Event {
	e.Blocking = true
	return e
}

var (
	// ErrClosed is returned by Enqueue after Close was called.
	ErrClosed = errors.New("speak: coordinator closed")

	// ErrNoEndpoint is returned by New when the worker never announced its
	// port.
	ErrNoEndpoint = errors.New("speak: worker announced no endpoint")
)

// Speaker is what other components need from the speak coordinator.
type Speaker interface {
	Enqueue(ctx context.Context, ev Event) error
}

// Say enqueues a blocking text event.
func Say(ctx context.Context, s Speaker, text string) error {
	return s.Enqueue(ctx, Text(text).Sync())
}

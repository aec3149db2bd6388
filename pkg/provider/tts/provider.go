// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A provider renders a piece of text audibly and returns once the speech has
// finished playing. The synthesis worker process owns the only provider
// instance, so implementations need not support concurrent calls.
package tts

import "context"

// Voice selects how text is rendered. Zero values mean provider defaults.
type Voice struct {
	// Name is the engine-specific voice identifier (e.g., "en-us").
	Name string

	// Rate is the speaking rate in words per minute.
	Rate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Speak synthesises text and blocks until playback completed or ctx is
	// cancelled.
	Speak(ctx context.Context, text string, voice Voice) error
}

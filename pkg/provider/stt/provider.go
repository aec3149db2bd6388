// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one captured utterance into text. The voice runtime uses
// two kinds of backend: an online one that talks to a recognition server and
// an offline one that runs a local model. The caller picks one explicitly per
// request; there is no automatic fallback between them.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/hearth/pkg/audio"
)

// ErrUnintelligible is returned when the backend processed the audio but
// produced no text.
var ErrUnintelligible = errors.New("stt: speech not recognised")

// Config carries per-request recognition hints.
type Config struct {
	// Language is a BCP-47 language code (e.g., "en"). Empty selects the
	// provider default.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Recognize transcribes clip. It returns [ErrUnintelligible] when the
	// backend produced only whitespace.
	Recognize(ctx context.Context, clip audio.Clip, cfg Config) (string, error)
}

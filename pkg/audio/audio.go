// Package audio defines the local audio devices used by the voice runtime:
// a [Microphone] that captures single utterances and a [Player] that renders
// short notification sounds.
//
// Device-backed implementations live in sub-packages (audio/mic and
// audio/playback) so that callers and tests can depend on these interfaces
// without linking against native audio libraries.
package audio

import (
	"context"
	"errors"
	"time"
)

// DefaultSampleRate is the capture rate expected by the recognizers.
const DefaultSampleRate = 16000

var (
	// ErrWaitTimeout is returned by [Microphone.Capture] when no speech started
	// before the response timeout elapsed.
	ErrWaitTimeout = errors.New("audio: timed out waiting for speech")

	// ErrNoSpeech is returned when a capture finished without any frame above
	// the energy threshold.
	ErrNoSpeech = errors.New("audio: no speech captured")
)

// Clip is one captured utterance as 16-bit signed little-endian PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	samples := len(c.PCM) / (2 * ch)
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.PCM) < 2 }

// CaptureOptions bounds a single capture.
type CaptureOptions struct {
	// ResponseTimeout is the maximum time to wait for speech to start.
	ResponseTimeout time.Duration

	// PhraseTimeout is the maximum length of the captured phrase once speech
	// has started.
	PhraseTimeout time.Duration

	// PauseThreshold is the silence length that ends the phrase.
	PauseThreshold time.Duration
}

// Microphone captures utterances from an input device. Implementations are
// not required to support concurrent captures; callers serialise access.
type Microphone interface {
	// Calibrate samples background noise for d and adjusts the speech energy
	// threshold accordingly.
	Calibrate(ctx context.Context, d time.Duration) error

	// Capture records one phrase. It returns [ErrWaitTimeout] if nobody
	// started speaking within opts.ResponseTimeout.
	Capture(ctx context.Context, opts CaptureOptions) (Clip, error)
}

// Player renders a named notification sound and returns once playback has
// finished.
type Player interface {
	Play(ctx context.Context, sound string) error
}

// Package mic implements [audio.Microphone] on top of PortAudio's default
// input device.
//
// The microphone records 20 ms frames, treats frames whose RMS energy exceeds
// a calibrated threshold as speech, and ends a phrase after a configurable
// pause. PortAudio must be initialised once per process; [New] does that and
// [Microphone.Close] terminates it again.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/hearth/pkg/audio"
)

const (
	frameDuration = 20 * time.Millisecond

	// defaultThreshold is the speech energy floor in 16-bit PCM units.
	defaultThreshold = 300.0

	// calibrationFactor scales the measured ambient RMS into the speech
	// threshold.
	calibrationFactor = 1.5
)

// Compile-time assertion that Microphone satisfies audio.Microphone.
var _ audio.Microphone = (*Microphone)(nil)

// Option is a functional option for configuring a Microphone.
type Option func(*Microphone)

// WithSampleRate overrides the capture rate. Defaults to 16000 Hz.
func WithSampleRate(rate int) Option {
	return func(m *Microphone) { m.sampleRate = rate }
}

// WithThreshold sets the initial speech energy threshold in PCM units.
func WithThreshold(rms float64) Option {
	return func(m *Microphone) { m.threshold = rms }
}

// Microphone captures from the system default input device.
type Microphone struct {
	mu         sync.Mutex
	sampleRate int
	threshold  float64
}

// New initialises PortAudio and returns a ready Microphone.
func New(opts ...Option) (*Microphone, error) {
	m := &Microphone{
		sampleRate: audio.DefaultSampleRate,
		threshold:  defaultThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}
	return m, nil
}

// Close releases PortAudio.
func (m *Microphone) Close() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("mic: terminate portaudio: %w", err)
	}
	return nil
}

// Threshold returns the current speech energy threshold.
func (m *Microphone) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// Calibrate listens for d and sets the speech threshold slightly above the
// ambient noise level.
func (m *Microphone) Calibrate(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	var (
		sum    float64
		frames int
	)
	err := m.stream(ctx, func(frame []byte) bool {
		sum += audio.RMS(frame)
		frames++
		return time.Duration(frames)*frameDuration < d
	})
	if err != nil {
		return fmt.Errorf("mic: calibrate: %w", err)
	}
	if frames == 0 {
		return nil
	}

	ambient := sum / float64(frames)
	m.mu.Lock()
	m.threshold = max(defaultThreshold, ambient*calibrationFactor)
	threshold := m.threshold
	m.mu.Unlock()
	slog.Debug("mic: calibrated", "ambient_rms", ambient, "threshold", threshold)
	return nil
}

// Capture records one phrase bounded by opts.
func (m *Microphone) Capture(ctx context.Context, opts audio.CaptureOptions) (audio.Clip, error) {
	seg := newSegmenter(frameDuration, m.Threshold(), opts)
	var state segmentState
	err := m.stream(ctx, func(frame []byte) bool {
		state = seg.push(frame)
		return state == segmentContinue
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("mic: capture: %w", err)
	}
	if state == segmentWaitTimeout {
		return audio.Clip{}, audio.ErrWaitTimeout
	}
	pcm := seg.result()
	if len(pcm) == 0 {
		return audio.Clip{}, audio.ErrNoSpeech
	}
	return audio.Clip{PCM: pcm, SampleRate: m.sampleRate, Channels: 1}, nil
}

// stream opens the default input device and hands each frame to fn until fn
// returns false or ctx is cancelled.
func (m *Microphone) stream(ctx context.Context, fn func(frame []byte) bool) error {
	buf := make([]float32, m.sampleRate*int(frameDuration)/int(time.Second))
	s, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), len(buf), buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer s.Close()

	if err := s.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer s.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return fmt.Errorf("read stream: %w", err)
		}
		if !fn(audio.Float32ToPCM(buf)) {
			return nil
		}
	}
}

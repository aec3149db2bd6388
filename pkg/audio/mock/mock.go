// Package mock provides in-memory implementations of [audio.Microphone] and
// [audio.Player] for unit tests.
//
// Both mocks are safe for concurrent use and record every call.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearth/pkg/audio"
)

// CaptureResult is one scripted response of [Microphone.Capture].
type CaptureResult struct {
	Clip audio.Clip
	Err  error
}

// Microphone is a scripted [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Captures are returned in order; once exhausted the last entry repeats.
	// If empty, Capture returns audio.ErrWaitTimeout.
	Captures []CaptureResult

	// CalibrateErr is returned by Calibrate.
	CalibrateErr error

	// OnCapture, if set, is invoked at the start of every Capture call.
	OnCapture func()

	// Delay simulates recording time. Capture returns early with ctx.Err()
	// when ctx ends first.
	Delay time.Duration

	CalibrateCalls []time.Duration
	CaptureCalls   []audio.CaptureOptions
}

// Calibrate records d and returns CalibrateErr.
func (m *Microphone) Calibrate(_ context.Context, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CalibrateCalls = append(m.CalibrateCalls, d)
	return m.CalibrateErr
}

// Capture returns the next scripted result.
func (m *Microphone) Capture(ctx context.Context, opts audio.CaptureOptions) (audio.Clip, error) {
	m.mu.Lock()
	hook, delay := m.OnCapture, m.Delay
	n := len(m.CaptureCalls)
	m.CaptureCalls = append(m.CaptureCalls, opts)
	var res CaptureResult
	switch {
	case len(m.Captures) == 0:
		res = CaptureResult{Err: audio.ErrWaitTimeout}
	case n < len(m.Captures):
		res = m.Captures[n]
	default:
		res = m.Captures[len(m.Captures)-1]
	}
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	return res.Clip, res.Err
}

// CaptureCount returns the number of Capture calls. Thread-safe.
func (m *Microphone) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CaptureCalls)
}

// Player is a recording [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// Delay simulates playback time.
	Delay time.Duration

	Played []string
}

// Play records sound and returns PlayErr after Delay.
func (p *Player) Play(ctx context.Context, sound string) error {
	p.mu.Lock()
	p.Played = append(p.Played, sound)
	delay, err := p.Delay, p.PlayErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Sounds returns a copy of the played sound names. Thread-safe.
func (p *Player) Sounds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Played...)
}

var (
	_ audio.Microphone = (*Microphone)(nil)
	_ audio.Player     = (*Player)(nil)
)

// Package playback implements [audio.Player] with faiface/beep.
//
// Sounds are registered by name and decoded from MP3 or WAV files on each
// Play call. The speaker is initialised lazily with the sample rate of the
// first decoded file; later files with a different rate are resampled.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/MrWong99/hearth/pkg/audio"
)

// ErrUnknownSound is returned by Play for names that were never registered.
var ErrUnknownSound = errors.New("playback: unknown sound")

// Compile-time assertion that Player satisfies audio.Player.
var _ audio.Player = (*Player)(nil)

// Player plays registered sound files through the default output device.
type Player struct {
	sounds map[string]string

	initOnce sync.Once
	initErr  error
	rate     beep.SampleRate
}

// New returns a Player for the given name → file path table.
func New(sounds map[string]string) *Player {
	m := make(map[string]string, len(sounds))
	for k, v := range sounds {
		m[k] = v
	}
	return &Player{sounds: m}
}

// Play decodes and plays the named sound, blocking until it finished or ctx
// is cancelled.
func (p *Player) Play(ctx context.Context, sound string) error {
	path, ok := p.sounds[sound]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSound, sound)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("playback: open %q: %w", path, err)
	}
	streamer, format, err := decode(f, path)
	if err != nil {
		f.Close()
		return fmt.Errorf("playback: decode %q: %w", path, err)
	}
	defer streamer.Close()

	p.initOnce.Do(func() {
		p.rate = format.SampleRate
		p.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("playback: init speaker: %w", p.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported extension %q", filepath.Ext(path))
	}
}

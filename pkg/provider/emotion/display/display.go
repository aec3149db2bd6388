// Package display implements [emotion.Representation] by launching an
// external media player (for example "mpv --fs") on a per-emotion clip.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"sync"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
)

// Compile-time assertion that Display satisfies emotion.Representation.
var _ emotion.Representation = (*Display)(nil)

// Display plays one media file per emotion category. Starting a new emotion
// replaces the one currently shown.
type Display struct {
	player []string
	media  map[emotion.Category]string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// New returns a Display that runs player with the media path appended.
func New(player []string, media map[emotion.Category]string) (*Display, error) {
	if len(player) == 0 || player[0] == "" {
		return nil, errors.New("display: player command must not be empty")
	}
	m := make(map[emotion.Category]string, len(media))
	for k, v := range media {
		if !k.IsValid() {
			return nil, fmt.Errorf("display: unknown emotion %q", k)
		}
		m[k] = v
	}
	return &Display{player: slices.Clone(player), media: m}, nil
}

// Start launches the player for c. Categories without media are ignored.
func (d *Display) Start(_ context.Context, c emotion.Category) error {
	path, ok := d.media[c]
	if !ok {
		slog.Debug("display: no media for emotion", "emotion", c)
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()

	args := append(slices.Clone(d.player[1:]), path)
	cmd := exec.Command(d.player[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("display: start %s: %w", d.player[0], err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	d.cmd, d.done = cmd, done
	return nil
}

// Stop terminates the running player, if any.
func (d *Display) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

// Running reports whether a player process is currently alive.
func (d *Display) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done == nil {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

func (d *Display) stopLocked() {
	if d.cmd == nil {
		return
	}
	select {
	case <-d.done:
	default:
		_ = d.cmd.Process.Kill()
		<-d.done
	}
	d.cmd, d.done = nil, nil
}

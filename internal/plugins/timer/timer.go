// Package timer is the passive plugin fired when a spoken timer runs out.
package timer

import (
	"context"
	"fmt"

	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/speak"
)

// Locator is the class locator the plugin is registered under.
const Locator = "./timer/timer.Timer"

// Finished is spoken after the timer sound.
const Finished = "Timer finished."

// Timer plays the timer sound and announces the end of the timer.
type Timer struct {
	speaker speak.Speaker
}

var _ plugin.Passive = (*Timer)(nil)

// Factory returns the registry entry for the plugin.
func Factory() plugin.Factory {
	return plugin.Factory{
		Needs: plugin.NeedSpeak,
		New: func(d plugin.Deps) (any, error) {
			return &Timer{speaker: d.Speaker}, nil
		},
	}
}

// Activate rings the timer.
func (t *Timer) Activate(ctx context.Context, act plugin.Activation) error {
	if err := t.speaker.Enqueue(ctx, speak.Sound(speak.KindTimer).Sync()); err != nil {
		return fmt.Errorf("timer: play sound: %w", err)
	}
	text := Finished
	if label, _ := act.Payload["label"].(string); label != "" {
		text = fmt.Sprintf("Your %s timer is finished.", label)
	}
	if err := speak.Say(ctx, t.speaker, text); err != nil {
		return fmt.Errorf("timer: announce: %w", err)
	}
	return nil
}

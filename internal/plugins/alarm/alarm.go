// Package alarm is the passive plugin fired when a spoken alarm goes off.
//
// The alarm rings, switches the house lights on when the home server is
// reachable and asks whether to snooze. Silence counts as a snooze until the
// snooze limit is reached.
package alarm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins/words"
	"github.com/MrWong99/hearth/internal/speak"
)

// Locator is the class locator the plugin is registered under.
const Locator = "./alarm/alarm.Alarm"

// Payload keys.
const (
	KeySnoozes = "snoozes"
	KeyLabel   = "label"
)

const (
	defaultMaxSnoozes = 3
	defaultSnooze     = 5 * time.Minute

	prompt = "Wake up! Say stop to turn off the alarm, or snooze to sleep a little longer."
)

var dismissWords = []string{"stop", "off", "awake", "up", "cancel", "dismiss"}

// Option customises an [Alarm].
type Option func(*Alarm)

// WithSnooze sets the snooze length.
func WithSnooze(d time.Duration) Option {
	return func(a *Alarm) { a.snooze = d }
}

// WithMaxSnoozes sets how often the alarm may be snoozed.
func WithMaxSnoozes(n int) Option {
	return func(a *Alarm) { a.maxSnoozes = n }
}

// Alarm implements [plugin.Passive].
type Alarm struct {
	speaker    speak.Speaker
	listener   listen.Listener
	status     homeserver.API
	snooze     time.Duration
	maxSnoozes int
}

var _ plugin.Passive = (*Alarm)(nil)

// Factory returns the registry entry for the plugin.
func Factory(opts ...Option) plugin.Factory {
	return plugin.Factory{
		Needs: plugin.NeedSpeak | plugin.NeedListen | plugin.NeedStatus,
		New: func(d plugin.Deps) (any, error) {
			a := &Alarm{
				speaker:    d.Speaker,
				listener:   d.Listener,
				status:     d.Status,
				snooze:     defaultSnooze,
				maxSnoozes: defaultMaxSnoozes,
			}
			for _, o := range opts {
				o(a)
			}
			return a, nil
		},
	}
}

// Activate rings the alarm and handles the snooze dialogue.
func (a *Alarm) Activate(ctx context.Context, act plugin.Activation) error {
	log := observe.Logger(ctx).With("id", act.ID)
	snoozes := intValue(act.Payload[KeySnoozes])

	if err := a.speaker.Enqueue(ctx, speak.Sound(speak.KindAlarm).Sync()); err != nil {
		return fmt.Errorf("alarm: play sound: %w", err)
	}
	if snoozes == 0 && a.status.Connected() {
		if err := a.status.ExecuteGetQuery(ctx, a.status.URL("moduleToggleAll", "1")); err != nil {
			log.Warn("alarm: could not switch lights on", "err", err)
		}
	}

	answer, heard := a.listener.ListenOnce(ctx, listen.Request{Prompt: prompt, MaxAttempts: 2})
	if heard && dismissed(answer) {
		return speak.Say(ctx, a.speaker, "Alarm off. Good morning!")
	}
	if snoozes >= a.maxSnoozes {
		return speak.Say(ctx, a.speaker, "That was the last snooze. The alarm is off.")
	}
	if act.Scheduler == nil {
		return fmt.Errorf("alarm: cannot snooze without a scheduler")
	}

	payload := map[string]any{KeySnoozes: snoozes + 1}
	if label, ok := act.Payload[KeyLabel]; ok {
		payload[KeyLabel] = label
	}
	if _, err := act.Scheduler.ScheduleAfter(ctx, Locator, a.snooze, payload, ""); err != nil {
		return fmt.Errorf("alarm: snooze: %w", err)
	}
	log.Info("alarm: snoozed", "snoozes", snoozes+1, "for", a.snooze)
	return speak.Say(ctx, a.speaker, fmt.Sprintf("Snoozing for %s.", words.Speak(a.snooze)))
}

func dismissed(answer string) bool {
	if strings.Contains(answer, "snooze") {
		return false
	}
	for _, w := range dismissWords {
		if words.Has(answer, w) {
			return true
		}
	}
	return false
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

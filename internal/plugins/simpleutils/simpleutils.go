// Package simpleutils answers commands that need neither the internet nor
// the home server: the time, the date, simple arithmetic and spoken timers
// and alarms.
package simpleutils

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins/alarm"
	"github.com/MrWong99/hearth/internal/plugins/timer"
	"github.com/MrWong99/hearth/internal/plugins/words"
	"github.com/MrWong99/hearth/internal/speak"
)

// Locator is the class locator the plugin is registered under.
const Locator = "./simple_utilities/simple_utilities.SimpleUtilities"

// Option customises [Utilities].
type Option func(*Utilities)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(u *Utilities) { u.now = now }
}

// Utilities implements [plugin.Active].
type Utilities struct {
	speaker speak.Speaker
	now     func() time.Time
}

var _ plugin.Active = (*Utilities)(nil)

// Factory returns the registry entry for the plugin.
func Factory(opts ...Option) plugin.Factory {
	return plugin.Factory{
		Needs: plugin.NeedSpeak,
		New: func(d plugin.Deps) (any, error) {
			u := &Utilities{speaker: d.Speaker, now: time.Now}
			for _, o := range opts {
				o(u)
			}
			return u, nil
		},
	}
}

// Handle answers cmd if it is one of the supported utilities.
func (u *Utilities) Handle(ctx context.Context, cmd plugin.Command) (bool, error) {
	text := cmd.Text
	switch {
	case words.Has(text, "timer"):
		return true, u.schedule(ctx, cmd, timer.Locator, "timer", nil)
	case words.Has(text, "alarm"):
		return true, u.schedule(ctx, cmd, alarm.Locator, "alarm", map[string]any{alarm.KeySnoozes: 0})
	case strings.Contains(text, "time"):
		return true, speak.Say(ctx, u.speaker, u.timeString())
	case words.Any(text, "date", "day", "month", "today"):
		return true, speak.Say(ctx, u.speaker, "Today is "+u.now().Format("Monday, January 2, 2006"))
	case words.Any(text, "calculator", "calculate"):
		answer, ok := Calculate(text)
		if !ok {
			return false, nil
		}
		return true, speak.Say(ctx, u.speaker, answer)
	}
	return false, nil
}

// timeString reads the 24h clock digit by digit.
func (u *Utilities) timeString() string {
	digits := strings.Split(u.now().Format("1504"), "")
	return "It is currently " + strings.Join(digits, ", ") + "."
}

func (u *Utilities) schedule(ctx context.Context, cmd plugin.Command, locator, what string, payload map[string]any) error {
	d, ok := words.Duration(cmd.Text)
	if !ok || d <= 0 {
		return speak.Say(ctx, u.speaker, fmt.Sprintf("Sorry, I didn't catch how long the %s should be.", what))
	}
	if cmd.Scheduler == nil {
		return speak.Say(ctx, u.speaker, fmt.Sprintf("Sorry, I can't set a %s right now.", what))
	}
	if _, err := cmd.Scheduler.ScheduleAfter(ctx, locator, d, payload, ""); err != nil {
		_ = speak.Say(ctx, u.speaker, fmt.Sprintf("Sorry, I couldn't set the %s.", what))
		return fmt.Errorf("simpleutils: schedule %s: %w", what, err)
	}
	article := "a"
	if what == "alarm" {
		article = "an"
	}
	return speak.Say(ctx, u.speaker, fmt.Sprintf("Setting %s %s for %s.", article, what, words.Speak(d)))
}

// Calculate evaluates "calculate <a> <operator> <b>" with spoken or written
// numbers. Only the first two non-zero numbers and the first operator are
// used; "negative" negates the following number.
func Calculate(text string) (string, bool) {
	var terms []int
	operator := ""
	negative := false
	for _, w := range strings.Fields(text) {
		if operator == "" {
			switch w {
			case "add", "plus", "+":
				operator = "plus"
				continue
			case "subtract", "minus", "-":
				operator = "minus"
				continue
			case "multiply", "times", "*", "x":
				operator = "times"
				continue
			case "divide", "divided", "/":
				operator = "divided by"
				continue
			}
		}
		if len(terms) == 2 {
			continue
		}
		if w == "negative" {
			negative = true
			continue
		}
		n := words.ToInt(w)
		if n == 0 {
			continue
		}
		if negative {
			n, negative = -n, false
		}
		terms = append(terms, n)
	}
	if len(terms) < 2 || operator == "" {
		return "", false
	}

	a, b := terms[0], terms[1]
	var result float64
	switch operator {
	case "plus":
		result = float64(a + b)
	case "minus":
		result = float64(a - b)
	case "times":
		result = float64(a * b)
	default:
		result = float64(a) / float64(b)
	}
	return fmt.Sprintf("%d %s %d equals %.2f.", a, operator, b, result), true
}

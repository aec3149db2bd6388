package homeautomation

import (
	"strings"

	"github.com/MrWong99/hearth/internal/plugins/words"
)

// device is one home server module a command can toggle.
type device struct {
	name         string
	room, action int
	on, off      int
	match        func(text string) bool
}

func all(subs ...string) func(string) bool {
	return func(text string) bool {
		for _, s := range subs {
			if !strings.Contains(text, s) {
				return false
			}
		}
		return true
	}
}

func and(a, b func(string) bool) func(string) bool {
	return func(text string) bool { return a(text) && b(text) }
}

func anyOf(subs ...string) func(string) bool {
	return func(text string) bool { return words.Any(text, subs...) }
}

// devices is checked in order; the first match wins. Specific modules (LED
// strips, night lights) precede the generic room lights they would
// otherwise match.
var devices = []device{
	{"bedroom night light", 1, 1000, 108, 100, and(all("bedroom"), anyOf("night", "red led"))},
	{"living room night light", 2, 1000, 108, 100, and(all("living"), anyOf("night", "red led"))},
	{"bedroom leds", 1, 1000, 107, 100, and(all("bedroom"), anyOf("led", "party", "rgb"))},
	{"living room leds", 2, 1000, 107, 100, and(all("living"), anyOf("led", "party", "rgb"))},
	{"bathroom fan", 3, 351, 22, 20, and(all("bathroom"), anyOf("fan", "vent"))},
	{"bathroom night light", 3, 50, 1, 0, and(all("bathroom"), anyOf("led", "night"))},
	{"bathroom light", 3, 350, 22, 20, and(all("bathroom"), anyOf("light", "lamp"))},
	{"ceiling light", 2, 251, 12, 10, all("ceiling", "light")},
	{"kitchen light", 2, 350, 22, 20, and(all("kitchen"), anyOf("light", "lamp"))},
	{"bedroom light", 1, 50, 1, 0, and(all("bedroom"), anyOf("light", "lamp"))},
	{"living room light", 2, 50, 1, 0, and(all("living"), anyOf("light", "lamp"))},
	{"speakers", 2, 250, 12, 10, func(t string) bool {
		return words.Any(t, "speaker", "soundbar") || all("sound", "bar")(t)
	}},
	{"printer", 2, 252, 12, 10, all("printer")},
}

func lookupDevice(text string) (device, bool) {
	for _, d := range devices {
		if d.match(text) {
			return d, true
		}
	}
	return device{}, false
}

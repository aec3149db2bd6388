// Package homeautomation turns spoken commands into home server queries:
// device toggles, thermostat changes, global switches and status readouts.
package homeautomation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins/words"
	"github.com/MrWong99/hearth/internal/speak"
)

// Locator is the class locator the plugin is registered under.
const Locator = "./home_automation/home_automation.HomeAutomation"

// Thermostat and temperature sensor coordinates on the home server.
const (
	thermostatRoom   = 2
	thermostatAction = 5251
	bedroomRoom      = 1
	bedroomSensor    = 5250
)

// Automation implements [plugin.Active].
type Automation struct {
	speaker speak.Speaker
	status  homeserver.API
}

var _ plugin.Active = (*Automation)(nil)

// Factory returns the registry entry for the plugin.
func Factory() plugin.Factory {
	return plugin.Factory{
		Needs: plugin.NeedSpeak | plugin.NeedStatus,
		New: func(d plugin.Deps) (any, error) {
			return &Automation{speaker: d.Speaker, status: d.Status}, nil
		},
	}
}

// Handle executes cmd against the home server. It reports false when the
// command names no known device or server function.
func (a *Automation) Handle(ctx context.Context, cmd plugin.Command) (bool, error) {
	text := cmd.Text
	states, errA := a.status.QueryActionStates(ctx)
	home, errH := a.status.QueryHomeStatus(ctx)
	if errA != nil || errH != nil {
		observe.Logger(ctx).Warn("homeautomation: refresh failed", "states_err", errA, "status_err", errH)
	}

	switch {
	case words.Any(text, "weather", "like outside", "how hot", "how cold"):
		if home.WeatherData == nil {
			return true, speak.Say(ctx, a.speaker, "Sorry, I don't have any weather data right now.")
		}
		return true, speak.Say(ctx, a.speaker, WeatherReport(*home.WeatherData))

	case words.Any(text, "everything", "all modules"):
		on, off := onOff(text)
		if !on && !off {
			return false, nil
		}
		state, prompt := "0", "Turning everything off."
		if on {
			state, prompt = "1", "Turning everything on."
		}
		return true, a.get(ctx, a.status.URL("moduleToggleAll", state), prompt)

	case strings.Contains(text, "thermostat"):
		return true, a.thermostat(ctx, text, home)

	case strings.Contains(text, "temperature"):
		return true, speak.Say(ctx, a.speaker, temperatures(states))

	case words.Any(text, "auto", "input", "automatic"):
		enable, disable := enableDisable(text)
		if !enable && !disable {
			return false, nil
		}
		if enable {
			return true, a.get(ctx, a.status.URL("moduleInputDisabled", "false"), "Enabling automatic server actions.")
		}
		return true, a.get(ctx, a.status.URL("moduleInputDisabled", "true"), "Disabling automatic server actions.")

	case strings.Contains(text, "server") && !strings.Contains(text, "status"):
		enable, disable := enableDisable(text)
		if !enable && !disable {
			return false, nil
		}
		if enable {
			return true, a.get(ctx, a.status.URL("serverDisabled", "false"), "Enabling central server operations.")
		}
		return true, a.get(ctx, a.status.URL("serverDisabled", "true"), "Disabling central server operations.")

	case strings.Contains(text, "status") && words.Any(text, "home", "system", "server"):
		return true, speak.Say(ctx, a.speaker, statusReport(home, states))
	}

	d, ok := lookupDevice(text)
	if !ok {
		return false, nil
	}
	url, err := a.status.GenerateToggleQuery(text, d.room, d.action, d.on, d.off)
	if err != nil {
		_ = speak.Say(ctx, a.speaker, "Sorry, I couldn't reach the home server.")
		return true, fmt.Errorf("homeautomation: toggle %q: %w", d.name, err)
	}
	return true, a.get(ctx, url, "Okay.")
}

// get executes url and confirms with prompt.
func (a *Automation) get(ctx context.Context, url, prompt string) error {
	if err := a.status.ExecuteGetQuery(ctx, url); err != nil {
		_ = speak.Say(ctx, a.speaker, "Sorry, the home server did not respond.")
		return fmt.Errorf("homeautomation: %w", err)
	}
	return speak.Say(ctx, a.speaker, prompt)
}

func (a *Automation) thermostat(ctx context.Context, text string, home homeserver.HomeStatus) error {
	target := words.ToInt(text)
	if target <= 30 || target >= 100 {
		return speak.Say(ctx, a.speaker, "Sorry, the thermostat can only be set between 31 and 99 degrees.")
	}
	rooms := map[string]map[string]any{}
	for k, v := range home.ModuleInput[fmt.Sprint(thermostatRoom)] {
		rooms[k] = v
	}
	entry := map[string]any{}
	for k, v := range rooms[fmt.Sprint(thermostatAction)] {
		entry[k] = v
	}
	onHeat := target + 1
	entry["onHeat"] = onHeat
	entry["offHeat"] = onHeat - 2
	rooms[fmt.Sprint(thermostatAction)] = entry

	payload := map[string]any{"roomId": thermostatRoom, "newModuleInput": rooms}
	if err := a.status.GenerateAndExecutePostQuery(ctx, payload); err != nil {
		_ = speak.Say(ctx, a.speaker, "Sorry, I couldn't update the thermostat.")
		return fmt.Errorf("homeautomation: thermostat: %w", err)
	}
	return speak.Say(ctx, a.speaker, fmt.Sprintf("Setting thermostat to %d.", target))
}

// WeatherReport renders w for speech. Temperatures are Fahrenheit as
// delivered by the home server and are truncated.
func WeatherReport(w homeserver.Weather) string {
	return fmt.Sprintf("It is currently %d degrees Fahrenheit, %s, with a maximum of %d and a minimum of %d. Humidity is %v percent.",
		int(w.Main.Temp), w.Description(), int(w.Main.TempMax), int(w.Main.TempMin), w.Main.Humidity)
}

func fahrenheit(c float64) int {
	return int(math.Round(c*9/5 + 32))
}

func temperatures(states homeserver.ActionStates) string {
	var parts []string
	if c, ok := states.Temperature(thermostatRoom, thermostatAction); ok {
		parts = append(parts, fmt.Sprintf("The Living Room is currently %d degrees.", fahrenheit(c)))
	}
	if c, ok := states.Temperature(bedroomRoom, bedroomSensor); ok {
		parts = append(parts, fmt.Sprintf("The Bedroom is currently %d degrees.", fahrenheit(c)))
	}
	if len(parts) == 0 {
		return "Sorry, I don't have any temperature readings right now."
	}
	return strings.Join(parts, " ")
}

func statusReport(home homeserver.HomeStatus, states homeserver.ActionStates) string {
	enabled := func(disabled homeserver.Flag) string {
		if disabled {
			return "disabled"
		}
		return "enabled"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The home server is currently %s with automatic actions %s. There are %d connected modules.",
		enabled(home.ServerDisabled), enabled(home.ModuleInputDisabled), home.ModulesCount)
	if t, ok := home.ModuleInput[fmt.Sprint(thermostatRoom)][fmt.Sprint(thermostatAction)]["onHeat"]; ok {
		if f, ok := t.(float64); ok {
			fmt.Fprintf(&b, " The thermostat is currently set to %d degrees.", int(f)-1)
		} else if n, ok := t.(int); ok {
			fmt.Fprintf(&b, " The thermostat is currently set to %d degrees.", n-1)
		}
	}
	b.WriteString(" ")
	b.WriteString(temperatures(states))
	return b.String()
}

func onOff(text string) (on, off bool) {
	off = words.Has(text, "off") || strings.Contains(text, "deactivate")
	on = !off && (words.Has(text, "on") || strings.Contains(text, "activate"))
	return on, off
}

func enableDisable(text string) (enable, disable bool) {
	disable = words.Has(text, "off") || words.Any(text, "disable", "deactivate")
	enable = !disable && (words.Has(text, "on") || words.Any(text, "enable", "activate"))
	return enable, disable
}

package homeserver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ActionStates is the per-room module state table reported by
// /actionStates. Values are numbers for toggles and strings such as
// "27.70_42.20" (temperature_humidity) for sensors.
type ActionStates struct {
	LastUpdate int64
	Rooms      map[string]map[string]any
}

// UnmarshalJSON splits the flat server document into LastUpdate and the
// room table.
func (a *ActionStates) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.Rooms = make(map[string]map[string]any, len(raw))
	for key, val := range raw {
		if key == "lastUpdate" {
			if err := json.Unmarshal(val, &a.LastUpdate); err != nil {
				return fmt.Errorf("lastUpdate: %w", err)
			}
			continue
		}
		var room map[string]any
		if err := json.Unmarshal(val, &room); err != nil {
			// Non-room entries are ignored.
			continue
		}
		a.Rooms[key] = room
	}
	return nil
}

// State returns the raw state of one module.
func (a ActionStates) State(room, action int) (any, bool) {
	r, ok := a.Rooms[strconv.Itoa(room)]
	if !ok {
		return nil, false
	}
	v, ok := r[strconv.Itoa(action)]
	return v, ok
}

// IntState returns a toggle state.
func (a ActionStates) IntState(room, action int) (int, bool) {
	v, ok := a.State(room, action)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// Temperature returns the temperature in Celsius of a sensor whose state has
// the form "<celsius>_<humidity>".
func (a ActionStates) Temperature(room, action int) (float64, bool) {
	v, ok := a.State(room, action)
	if !ok {
		return 0, false
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	c, _, _ := strings.Cut(s, "_")
	f, err := strconv.ParseFloat(c, 64)
	return f, err == nil
}

// Flag decodes booleans the server sends either as JSON booleans or as the
// strings "true"/"false".
type Flag bool

// UnmarshalJSON accepts true, false, "true" and "false".
func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*f = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid flag %s", b)
	}
	*f = Flag(v)
	return nil
}

// Weather is the subset of the OpenWeatherMap payload the server forwards.
type Weather struct {
	Main struct {
		Temp     float64 `json:"temp"`
		TempMax  float64 `json:"temp_max"`
		TempMin  float64 `json:"temp_min"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Conditions []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Description returns the first weather condition, or "".
func (w Weather) Description() string {
	if len(w.Conditions) == 0 {
		return ""
	}
	return w.Conditions[0].Description
}

// HomeStatus is the miscellaneous server state reported by /homeStatus.
type HomeStatus struct {
	LastUpdate          int64    `json:"lastUpdate"`
	ServerDisabled      Flag     `json:"serverDisabled"`
	ModuleInputDisabled Flag     `json:"moduleInputDisabled"`
	ModulesCount        int      `json:"modulesCount"`
	WeatherData         *Weather `json:"weatherData"`

	// ModuleInput holds per-room, per-module input settings such as
	// thermostat thresholds ({"2": {"5251": {"onHeat": 70, "offHeat": 68}}}).
	ModuleInput map[string]map[string]map[string]any `json:"moduleInput"`
}

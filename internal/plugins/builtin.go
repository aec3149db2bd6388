// Package plugins registers the plugins compiled into hearth.
package plugins

import (
	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/plugins/alarm"
	"github.com/MrWong99/hearth/internal/plugins/homeautomation"
	"github.com/MrWong99/hearth/internal/plugins/simpleutils"
	"github.com/MrWong99/hearth/internal/plugins/timer"
)

// RegisterBuiltins adds every built-in plugin factory to reg.
func RegisterBuiltins(reg *plugin.Registry) {
	reg.Register(simpleutils.Locator, simpleutils.Factory())
	reg.Register(homeautomation.Locator, homeautomation.Factory())
	reg.Register(timer.Locator, timer.Factory())
	reg.Register(alarm.Locator, alarm.Factory())
}

// DefaultActive lists the active plugins in dispatch order.
var DefaultActive = []string{simpleutils.Locator, homeautomation.Locator}

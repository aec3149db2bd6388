// Package plugin loads command-handling plugins described by a manifest.
//
// A plugin is registered in a [Registry] under its class locator together
// with the collaborators it needs. Its manifest lives in the plugin folder
// below the plugins directory and declares the same collaborator set plus
// runtime requirements. [Loader.Load] wires both together; any problem
// produces an [Instance] with Valid=false instead of an error, so one broken
// plugin never takes the runtime down.
package plugin

import (
	"context"
	"time"

	"github.com/MrWong99/hearth/internal/homeserver"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/speak"
)

// Deps are the collaborators a plugin may ask for. Only the declared ones
// are set when a factory runs.
type Deps struct {
	Speaker  speak.Speaker
	Listener listen.Listener
	Status   homeserver.API
}

// Scheduler lets active plugins create and cancel passive records.
type Scheduler interface {
	ScheduleAfter(ctx context.Context, locator string, delay time.Duration, payload map[string]any, id string) (string, error)
	Cancel(id string) bool
}

// Command is one spoken command handed to an active plugin.
type Command struct {
	// Text is the lowercased command.
	Text string

	// Scheduler is nil when passive scheduling is unavailable.
	Scheduler Scheduler
}

// Active handles spoken commands.
type Active interface {
	// Handle reports whether the plugin accepted cmd. A plugin that does not
	// recognise the command returns false and a nil error.
	Handle(ctx context.Context, cmd Command) (bool, error)
}

// Activation is one fired passive record.
type Activation struct {
	ID      string
	Payload map[string]any

	// Scheduler lets the plugin reschedule itself.
	Scheduler Scheduler
}

// Passive runs when its scheduled tick is reached.
type Passive interface {
	Activate(ctx context.Context, act Activation) error
}

// Instance is one loaded plugin.
type Instance struct {
	Manifest Manifest
	Handler  any

	// Valid is false when loading failed. Err says why.
	Valid bool
	Err   error
}

// Locator returns the raw class locator.
func (i *Instance) Locator() string { return i.Manifest.Locator.Raw }

// DisposeTimeout returns the manifest dispose timeout.
func (i *Instance) DisposeTimeout() time.Duration {
	return time.Duration(i.Manifest.DisposeTimeoutSeconds) * time.Second
}

// Active returns the handler as [Active] if the instance is valid and
// implements it.
func (i *Instance) Active() (Active, bool) {
	if i == nil || !i.Valid {
		return nil, false
	}
	a, ok := i.Handler.(Active)
	return a, ok
}

// Passive returns the handler as [Passive] if the instance is valid and
// implements it.
func (i *Instance) Passive() (Passive, bool) {
	if i == nil || !i.Valid {
		return nil, false
	}
	p, ok := i.Handler.(Passive)
	return p, ok
}

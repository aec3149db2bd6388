package hotword

import (
	"context"
	"sync"

	"github.com/MrWong99/hearth/internal/dispatch"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/observe"
)

// Dispatcher handles one recognised command.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) dispatch.Result
}

// Refresher updates cached home server state.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Routine is the [Commander] run after a wake phrase: it listens for a
// command behind a chime and dispatches it. Commands no plugin accepts are
// asked for again, up to Attempts times.
type Routine struct {
	Listener   listen.Listener
	Dispatcher Dispatcher

	// Request is the listen request template; Chime is always set.
	Request listen.Request

	// Attempts bounds how often an unhandled command is asked for again.
	// Values below 1 mean one attempt.
	Attempts int

	// Refresher, if set, refreshes home server state while the user speaks.
	Refresher Refresher
}

var _ Commander = (*Routine)(nil)

// Command implements [Commander].
func (r *Routine) Command(ctx context.Context) {
	log := observe.Logger(ctx)

	var wg sync.WaitGroup
	if r.Refresher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Refresher.Refresh(ctx); err != nil {
				log.Debug("hotword: home state refresh failed", "err", err)
			}
		}()
	}
	defer wg.Wait()

	req := r.Request
	req.Chime = true
	attempts := max(r.Attempts, 1)
	for i := range attempts {
		text, ok := r.Listener.ListenOnce(ctx, req)
		if !ok {
			log.Debug("hotword: no command heard", "attempt", i+1)
			return
		}
		res := r.Dispatcher.Dispatch(ctx, text)
		if res.Err != nil {
			log.Warn("hotword: command failed", "command", text, "err", res.Err)
		}
		if res.Outcome != dispatch.OutcomeUnhandled {
			return
		}
		log.Debug("hotword: command not understood", "command", text, "attempt", i+1)
	}
}

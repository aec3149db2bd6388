package listen

import (
	"context"
	"sync"
)

// Busy is the microphone mutual-exclusion flag. Whoever acquires it owns the
// microphone until Release. The zero value is free.
//
// There are two kinds of owner. A listen session takes the flag with
// [Busy.TryAcquire] or [Busy.Acquire] and keeps it until it is done. A
// background capture, such as the hotword loop, takes it with
// [Busy.TryAcquireYielding]: it never gets the flag while a session waits,
// and [Busy.Requested] tells it to let go early.
type Busy struct {
	mu       sync.Mutex
	held     bool
	yielding bool
	waiting  int
	freed    chan struct{}
	request  chan struct{}
}

// TryAcquire takes the flag for a session if it is free and reports whether
// it did.
func (b *Busy) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held {
		return false
	}
	b.take(false)
	return true
}

// TryAcquireYielding takes the flag for a background capture. It fails while
// the flag is held or a session is waiting for it.
func (b *Busy) TryAcquireYielding() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.held || b.waiting > 0 {
		return false
	}
	b.take(true)
	return true
}

// Acquire takes the flag for a session. If a yielding owner holds it, Acquire
// asks it to let go and waits for the release. It returns false at once when
// another session owns the flag, and false when ctx ends first.
func (b *Busy) Acquire(ctx context.Context) bool {
	b.mu.Lock()
	for {
		if !b.held {
			b.take(false)
			b.mu.Unlock()
			return true
		}
		if !b.yielding {
			b.mu.Unlock()
			return false
		}
		if b.request != nil {
			close(b.request)
			b.request = nil
		}
		if b.freed == nil {
			b.freed = make(chan struct{})
		}
		freed := b.freed
		b.waiting++
		b.mu.Unlock()

		select {
		case <-freed:
		case <-ctx.Done():
			b.mu.Lock()
			b.waiting--
			b.mu.Unlock()
			return false
		}

		b.mu.Lock()
		b.waiting--
	}
}

// take marks the flag held. b.mu must be held.
func (b *Busy) take(yielding bool) {
	b.held = true
	b.yielding = yielding
	if yielding {
		b.request = make(chan struct{})
	}
}

// Requested returns a channel that is closed once a session asks the current
// yielding owner to release the flag. It returns nil, which blocks forever,
// when the flag is not held by a yielding owner.
func (b *Busy) Requested() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.held || !b.yielding {
		return nil
	}
	if b.request == nil {
		// Already requested.
		c := make(chan struct{})
		close(c)
		return c
	}
	return b.request
}

// Waiting reports whether a session is waiting for the flag.
func (b *Busy) Waiting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting > 0
}

// Release frees the flag and wakes any waiting session.
func (b *Busy) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held = false
	b.yielding = false
	b.request = nil
	if b.freed != nil {
		close(b.freed)
		b.freed = nil
	}
}

// Held reports whether someone currently owns the microphone.
func (b *Busy) Held() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held
}

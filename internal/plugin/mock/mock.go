// Package mock provides a recording plugin.Scheduler for plugin tests.
package mock

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/hearth/internal/plugin"
)

// ScheduleCall records one ScheduleAfter invocation.
type ScheduleCall struct {
	Locator string
	Delay   time.Duration
	Payload map[string]any
	ID      string
}

// Scheduler records scheduling requests without firing anything.
type Scheduler struct {
	mu sync.Mutex

	// Err is returned from ScheduleAfter.
	Err error

	Scheduled []ScheduleCall
	Cancelled []string
}

// ScheduleAfter records the call and returns the given id, or a sequential
// one when id is empty.
func (s *Scheduler) ScheduleAfter(_ context.Context, locator string, delay time.Duration, payload map[string]any, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if id == "" {
		id = "rec-" + strconv.Itoa(len(s.Scheduled)+1)
	}
	s.Scheduled = append(s.Scheduled, ScheduleCall{Locator: locator, Delay: delay, Payload: payload, ID: id})
	return id, nil
}

// Cancel records id and reports whether it was scheduled here.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled = append(s.Cancelled, id)
	for _, c := range s.Scheduled {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Calls returns a copy of the scheduled calls. Thread-safe.
func (s *Scheduler) Calls() []ScheduleCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ScheduleCall(nil), s.Scheduled...)
}

var _ plugin.Scheduler = (*Scheduler)(nil)

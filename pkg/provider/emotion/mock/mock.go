// Package mock provides test doubles for the emotion package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
)

// Classifier returns a fixed category for every text.
type Classifier struct {
	mu sync.Mutex

	Result emotion.Category
	Err    error

	Texts []string
}

// Classify records text and returns Result, Err.
func (c *Classifier) Classify(_ context.Context, text string) (emotion.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Texts = append(c.Texts, text)
	return c.Result, c.Err
}

// Representation records Start and Stop calls. Log holds entries of the form
// "start:<category>" and "stop" in call order.
type Representation struct {
	mu sync.Mutex

	StartErr error

	Log []string
}

// Start records the call.
func (r *Representation) Start(_ context.Context, c emotion.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Log = append(r.Log, "start:"+string(c))
	return r.StartErr
}

// Stop records the call.
func (r *Representation) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Log = append(r.Log, "stop")
	return nil
}

// Calls returns a copy of Log. Thread-safe.
func (r *Representation) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Log...)
}

var (
	_ emotion.Classifier     = (*Classifier)(nil)
	_ emotion.Representation = (*Representation)(nil)
)

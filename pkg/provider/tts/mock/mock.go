// Package mock provides a test double for the tts.Provider interface.
//
//	p := &mock.Provider{}
//	_ = p.Speak(ctx, "hello", tts.Voice{})
//	p.Texts() // ["hello"]
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/hearth/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	Text  string
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned from every Speak call.
	SpeakErr error

	// Delay simulates synthesis time.
	Delay time.Duration

	// Calls records every call to Speak.
	Calls []SpeakCall
}

// Speak records the call and returns SpeakErr after Delay.
func (p *Provider) Speak(ctx context.Context, text string, voice tts.Voice) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, SpeakCall{Text: text, Voice: voice})
	delay, err := p.Delay, p.SpeakErr
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Texts returns the spoken texts in call order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

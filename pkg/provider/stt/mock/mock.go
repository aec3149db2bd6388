// Package mock provides a test double for [stt.Provider].
//
// Script the returned transcripts with Results; every call is recorded.
//
//	p := &mock.Provider{Results: []mock.Result{{Text: "What time is it"}}}
//	text, _ := p.Recognize(ctx, clip, stt.Config{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/provider/stt"
)

// Result is one scripted Recognize outcome.
type Result struct {
	Text string
	Err  error
}

// RecognizeCall records a single invocation of Provider.Recognize.
type RecognizeCall struct {
	Clip audio.Clip
	Cfg  stt.Config
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are consumed in order; once exhausted the last one repeats.
	// An empty list yields stt.ErrUnintelligible.
	Results []Result

	// Calls records every call to Recognize.
	Calls []RecognizeCall
}

// Recognize records the call and returns the next scripted result.
func (p *Provider) Recognize(_ context.Context, clip audio.Clip, cfg stt.Config) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.Calls)
	p.Calls = append(p.Calls, RecognizeCall{Clip: clip, Cfg: cfg})
	switch {
	case len(p.Results) == 0:
		return "", stt.ErrUnintelligible
	case n < len(p.Results):
		return p.Results[n].Text, p.Results[n].Err
	default:
		last := p.Results[len(p.Results)-1]
		return last.Text, last.Err
	}
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

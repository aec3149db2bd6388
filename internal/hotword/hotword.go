// Package hotword runs the wake-phrase loop. It owns the microphone between
// listen sessions, capturing short clips and handing control to the command
// routine when one of them contains a wake phrase.
//
// The loop shares a [listen.Busy] flag with the listen coordinator. It takes
// the flag as a yielding owner before every capture and holds it only while
// a clip is being recorded. A listen session that asks for the microphone
// cuts the capture short and gets the flag before the loop's next attempt.
package hotword

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/hearth/internal/dispatch/phonetic"
	"github.com/MrWong99/hearth/internal/listen"
	"github.com/MrWong99/hearth/internal/observe"
	"github.com/MrWong99/hearth/pkg/audio"
	"github.com/MrWong99/hearth/pkg/provider/stt"
)

const defaultInterval = 100 * time.Millisecond

// Detector decides whether a clip contains a wake phrase.
type Detector interface {
	Detect(ctx context.Context, clip audio.Clip) (bool, error)
}

// Commander runs the command routine after a wake phrase was heard.
type Commander interface {
	Command(ctx context.Context)
}

// PhraseDetector recognises the clip and looks for one of its phrases.
type PhraseDetector struct {
	rec      stt.Provider
	phrases  []string
	matcher  *phonetic.Matcher
	language string
}

var _ Detector = (*PhraseDetector)(nil)

// NewPhraseDetector returns a detector accepting any of phrases.
func NewPhraseDetector(rec stt.Provider, phrases []string, language string) (*PhraseDetector, error) {
	if rec == nil {
		return nil, errors.New("hotword: recognizer is required")
	}
	if len(phrases) == 0 {
		return nil, errors.New("hotword: at least one wake phrase is required")
	}
	return &PhraseDetector{rec: rec, phrases: phrases, matcher: phonetic.New(), language: language}, nil
}

// Detect implements [Detector]. Unintelligible clips are not an error.
func (d *PhraseDetector) Detect(ctx context.Context, clip audio.Clip) (bool, error) {
	text, err := d.rec.Recognize(ctx, clip, stt.Config{Language: d.language})
	if errors.Is(err, stt.ErrUnintelligible) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hotword: recognize: %w", err)
	}
	phrase, score, ok := d.matcher.Find(text, d.phrases)
	if ok {
		observe.Logger(ctx).Debug("hotword: phrase matched", "phrase", phrase, "score", score, "text", text)
	}
	return ok, nil
}

// Option configures a [Loop].
type Option func(*Loop)

// WithInterval sets the back-off while the microphone is busy or failing.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithCapture overrides the per-clip capture bounds.
func WithCapture(opts audio.CaptureOptions) Option {
	return func(l *Loop) { l.capture = opts }
}

// Loop is the wake-phrase loop. Run it from exactly one goroutine.
type Loop struct {
	mic      audio.Microphone
	detector Detector
	busy     *listen.Busy
	cmd      Commander
	interval time.Duration
	capture  audio.CaptureOptions
}

// New returns a loop. All collaborators are required.
func New(mic audio.Microphone, detector Detector, busy *listen.Busy, cmd Commander, opts ...Option) (*Loop, error) {
	switch {
	case mic == nil:
		return nil, errors.New("hotword: microphone is required")
	case detector == nil:
		return nil, errors.New("hotword: detector is required")
	case busy == nil:
		return nil, errors.New("hotword: busy flag is required")
	case cmd == nil:
		return nil, errors.New("hotword: commander is required")
	}
	l := &Loop{
		mic:      mic,
		detector: detector,
		busy:     busy,
		cmd:      cmd,
		interval: defaultInterval,
		capture: audio.CaptureOptions{
			ResponseTimeout: 2 * time.Second,
			PhraseTimeout:   3 * time.Second,
			PauseThreshold:  500 * time.Millisecond,
		},
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Run listens for wake phrases until ctx is cancelled. It returns nil on
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	log := observe.Logger(ctx)
	log.Info("hotword: listening for wake phrases")
	for {
		if ctx.Err() != nil {
			return nil
		}
		clip, captured := l.listen(ctx)
		if !captured {
			continue
		}
		ok, err := l.detector.Detect(ctx, clip)
		if err != nil {
			log.Warn("hotword: detection failed", "err", err)
			l.wait(ctx)
			continue
		}
		if !ok {
			continue
		}

		wctx, span := observe.StartSpan(ctx, "hotword.wake")
		log.Info("hotword: wake phrase detected")
		l.cmd.Command(wctx)
		span.End()
	}
}

// listen captures one clip if the microphone is free.
func (l *Loop) listen(ctx context.Context) (audio.Clip, bool) {
	if !l.busy.TryAcquireYielding() {
		l.wait(ctx)
		return audio.Clip{}, false
	}
	cctx, cancel := context.WithCancel(ctx)
	requested := l.busy.Requested()
	go func() {
		select {
		case <-requested:
			cancel()
		case <-cctx.Done():
		}
	}()
	clip, err := l.mic.Capture(cctx, l.capture)
	cancel()
	l.busy.Release()

	switch {
	case ctx.Err() != nil:
		return audio.Clip{}, false
	case errors.Is(err, context.Canceled):
		// A listen session took over the microphone.
		return audio.Clip{}, false
	case errors.Is(err, audio.ErrWaitTimeout), errors.Is(err, audio.ErrNoSpeech):
		return audio.Clip{}, false
	case err != nil:
		observe.Logger(ctx).Warn("hotword: capture failed", "err", err)
		l.wait(ctx)
		return audio.Clip{}, false
	case clip.Empty():
		return audio.Clip{}, false
	}
	return clip, true
}

func (l *Loop) wait(ctx context.Context) {
	t := time.NewTimer(l.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package mic

import (
	"time"

	"github.com/MrWong99/hearth/pkg/audio"
)

// segmenter splits a stream of fixed-size PCM frames into a single phrase.
// Time is measured in frame durations so behaviour is independent of the
// wall clock. It is not safe for concurrent use.
type segmenter struct {
	frameDur  time.Duration
	threshold float64
	opts      audio.CaptureOptions

	waited  time.Duration
	spoken  time.Duration
	silence time.Duration
	started bool
	phrase  []byte
}

// segmentState is returned by push.
type segmentState int

const (
	segmentContinue segmentState = iota
	segmentDone
	segmentWaitTimeout
)

func newSegmenter(frameDur time.Duration, threshold float64, opts audio.CaptureOptions) *segmenter {
	return &segmenter{frameDur: frameDur, threshold: threshold, opts: opts}
}

// push feeds one frame and reports whether the phrase is complete.
func (s *segmenter) push(frame []byte) segmentState {
	loud := audio.RMS(frame) > s.threshold

	if !s.started {
		if !loud {
			s.waited += s.frameDur
			if s.opts.ResponseTimeout > 0 && s.waited >= s.opts.ResponseTimeout {
				return segmentWaitTimeout
			}
			return segmentContinue
		}
		s.started = true
	}

	s.phrase = append(s.phrase, frame...)
	s.spoken += s.frameDur
	if loud {
		s.silence = 0
	} else {
		s.silence += s.frameDur
		if s.opts.PauseThreshold > 0 && s.silence >= s.opts.PauseThreshold {
			return segmentDone
		}
	}
	if s.opts.PhraseTimeout > 0 && s.spoken >= s.opts.PhraseTimeout {
		return segmentDone
	}
	return segmentContinue
}

// result returns the accumulated phrase.
func (s *segmenter) result() []byte { return s.phrase }

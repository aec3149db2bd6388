// Package phonetic finds plugin keywords in recognised commands, tolerating
// the spelling drift speech recognizers introduce ("thermostat" heard as
// "thermo stat", "lamp" as "lamb").
//
// A keyword matches when it occurs literally in the command. Otherwise every
// window of command words with the keyword's word count is compared:
//
//  1. If any Double Metaphone code of the window overlaps with one of the
//     keyword, the window is a phonetic candidate and is accepted when its
//     Jaro-Winkler similarity reaches the phonetic threshold.
//  2. Windows without phonetic overlap are accepted only above the higher
//     fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for windows that
// share a phonetic code with the keyword. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for windows without
// phonetic overlap. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher].
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Find returns the best keyword found in command. Literal occurrences score
// 1 and win over approximate ones.
func (m *Matcher) Find(command string, keywords []string) (keyword string, score float64, ok bool) {
	command = strings.ToLower(command)
	tokens := strings.Fields(command)
	if len(tokens) == 0 {
		return "", 0, false
	}

	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(command, kw) {
			return kw, 1, true
		}
	}

	for _, kw := range keywords {
		kwTokens := strings.Fields(strings.ToLower(kw))
		n := len(kwTokens)
		if n == 0 || n > len(tokens) {
			continue
		}
		kwCodes := codesForTokens(kwTokens)
		kwFull := strings.Join(kwTokens, " ")

		// Windows one word wider catch keywords split by the recognizer.
		for width := n; width <= n+1 && width <= len(tokens); width++ {
			for i := 0; i+width <= len(tokens); i++ {
				window := tokens[i : i+width]
				s := bestJWScore(window, kwTokens, strings.Join(window, " "), kwFull)
				threshold := m.fuzzyThreshold
				if codesOverlap(codesForTokens(window), kwCodes) {
					threshold = m.phoneticThreshold
				}
				if s >= threshold && s > score {
					keyword, score, ok = kw, s, true
				}
			}
		}
	}
	return keyword, score, ok
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens, excluding empty codes.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher of the full-string and the space-stripped
// Jaro-Winkler similarity.
func bestJWScore(inputTokens, keywordTokens []string, inputFull, keywordFull string) float64 {
	score := matchr.JaroWinkler(inputFull, keywordFull, false)
	if len(inputTokens) > 1 || len(keywordTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(keywordTokens, ""), false); s > score {
			score = s
		}
	}
	return score
}

// Package words holds the small text helpers the built-in plugins share:
// spoken-number parsing and word matching on recognised commands.
package words

import (
	"strconv"
	"strings"
	"time"
)

type numword struct {
	scale     int
	increment int
}

var numwords = func() map[string]numword {
	units := []string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight",
		"nine", "ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen",
		"sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens := []string{"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety"}
	scales := []string{"hundred", "thousand", "million", "billion", "trillion"}

	m := map[string]numword{"and": {1, 0}}
	for i, w := range units {
		m[w] = numword{1, i}
	}
	for i, w := range tens {
		if w != "" {
			m[w] = numword{1, i * 10}
		}
	}
	for i, w := range scales {
		exp := i * 3
		if exp == 0 {
			exp = 2
		}
		scale := 1
		for range exp {
			scale *= 10
		}
		m[w] = numword{scale, 0}
	}
	return m
}()

// IsNumber reports whether w is a number word or a decimal integer.
func IsNumber(w string) bool {
	if _, ok := numwords[w]; ok && w != "and" {
		return true
	}
	_, err := strconv.Atoi(w)
	return err == nil
}

// ToInt converts spoken numbers such as "one hundred and twenty five" to an
// integer. Unknown words are skipped; the first decimal token ("72") is
// returned as is. Text without numbers yields 0.
func ToInt(text string) int {
	current, result := 0, 0
	for _, w := range strings.Fields(strings.ToLower(text)) {
		nw, ok := numwords[w]
		if !ok {
			if n, err := strconv.Atoi(w); err == nil {
				return n
			}
			continue
		}
		current = current*nw.scale + nw.increment
		if nw.scale > 100 {
			result += current
			current = 0
		}
	}
	return result + current
}

var units = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second,
	"minute": time.Minute, "minutes": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
}

// Duration extracts a spoken duration such as "five minutes and thirty
// seconds" or "an hour". It reports false when no unit with a number was
// found.
func Duration(text string) (time.Duration, bool) {
	var total time.Duration
	var pending []string
	found := false
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if u, ok := units[w]; ok {
			n := ToInt(strings.Join(pending, " "))
			if len(pending) == 1 && (pending[0] == "a" || pending[0] == "an") {
				n = 1
			}
			if n > 0 {
				total += time.Duration(n) * u
				found = true
			}
			pending = pending[:0]
			continue
		}
		if IsNumber(w) || w == "a" || w == "an" || (w == "and" && len(pending) > 0) {
			pending = append(pending, w)
			continue
		}
		pending = pending[:0]
	}
	return total, found
}

// Has reports whether w occurs in text as a whole word.
func Has(text, w string) bool {
	for _, f := range strings.Fields(text) {
		if f == w {
			return true
		}
	}
	return false
}

// Any reports whether any of subs occurs in text as a substring.
func Any(text string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Speak renders d the way it is read out, e.g. "1 hour and 5 minutes".
func Speak(d time.Duration) string {
	d = d.Round(time.Second)
	parts := []string{}
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n != 1 {
			unit += "s"
		}
		parts = append(parts, strconv.Itoa(n)+" "+unit)
	}
	add(int(d/time.Hour), "hour")
	add(int(d%time.Hour/time.Minute), "minute")
	add(int(d%time.Minute/time.Second), "second")
	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

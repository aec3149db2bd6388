// Package emotion defines the optional emotion overlay used while speaking:
// a [Classifier] that maps an utterance to one of seven discrete emotion
// categories and a [Representation] that renders that emotion (a video, an
// LED pattern, …) for as long as the utterance is being spoken.
package emotion

import (
	"context"
	"strings"
)

// Category is one of Ekman's six basic emotions plus neutral.
type Category string

const (
	Joy      Category = "joy"
	Sadness  Category = "sadness"
	Fear     Category = "fear"
	Anger    Category = "anger"
	Disgust  Category = "disgust"
	Surprise Category = "surprise"
	Neutral  Category = "neutral"
)

// Categories lists every valid Category in a stable order.
var Categories = []Category{Joy, Sadness, Fear, Anger, Disgust, Surprise, Neutral}

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Parse maps free-form model output to a Category. Unknown labels map to
// [Neutral]; ok is false in that case.
func Parse(s string) (c Category, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".!\"'`")
	c = Category(s)
	if c.IsValid() {
		return c, true
	}
	return Neutral, false
}

// Classifier predicts the emotion expressed by text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Category, error)
}

// Representation renders an emotion. Start must return promptly; the
// rendering continues in the background until Stop is called.
type Representation interface {
	Start(ctx context.Context, c Category) error
	Stop() error
}

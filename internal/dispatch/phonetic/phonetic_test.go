package phonetic_test

import (
	"testing"

	"github.com/MrWong99/hearth/internal/dispatch/phonetic"
)

func TestMatcher_LiteralMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	kw, score, ok := m.Find("What is the Weather like outside", []string{"thermostat", "weather"})
	if !ok || kw != "weather" || score != 1 {
		t.Fatalf("Find = %q, %f, %v; want weather, 1, true", kw, score, ok)
	}
}

func TestMatcher_SplitKeyword(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	kw, score, ok := m.Find("set the thermo stat to seventy", []string{"thermostat"})
	if !ok || kw != "thermostat" {
		t.Fatalf("Find = %q, %f, %v; want thermostat", kw, score, ok)
	}
	if score < 0.9 {
		t.Errorf("score = %f, want >= 0.9", score)
	}
}

func TestMatcher_Misspelling(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	kw, _, ok := m.Find("what is the temprature inside", []string{"temperature"})
	if !ok || kw != "temperature" {
		t.Fatalf("Find = %q, %v; want temperature", kw, ok)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if kw, score, ok := m.Find("play some music", []string{"thermostat"}); ok {
		t.Fatalf("Find = %q, %f; want no match", kw, score)
	}
	if _, _, ok := m.Find("", []string{"thermostat"}); ok {
		t.Fatal("empty command matched")
	}
	if _, _, ok := m.Find("thermostat", nil); ok {
		t.Fatal("matched without keywords")
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(1.01), phonetic.WithFuzzyThreshold(1.01))
	if _, _, ok := strict.Find("what is the temprature inside", []string{"temperature"}); ok {
		t.Fatal("approximate match accepted above maximum threshold")
	}
	if _, _, ok := strict.Find("what is the temperature inside", []string{"temperature"}); !ok {
		t.Fatal("literal match must ignore thresholds")
	}
}

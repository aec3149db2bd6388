package emotion_test

import (
	"testing"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
)

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   emotion.Category
		wantOK bool
	}{
		{"joy", emotion.Joy, true},
		{"  Surprise!", emotion.Surprise, true},
		{`"fear"`, emotion.Fear, true},
		{"NEUTRAL.", emotion.Neutral, true},
		{"contempt", emotion.Neutral, false},
		{"", emotion.Neutral, false},
	}
	for _, tt := range tests {
		got, ok := emotion.Parse(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Parse(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

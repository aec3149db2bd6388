package command

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/MrWong99/hearth/pkg/provider/tts"
)

func TestNew_EmptyProgram(t *testing.T) {
	t.Parallel()
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestExpand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		argv      []string
		voice     tts.Voice
		want      []string
		wantStdin bool
	}{
		{
			name:  "all placeholders",
			argv:  []string{"espeak-ng", "-v", "{voice}", "-s", "{rate}", "{text}"},
			voice: tts.Voice{Name: "en-us", Rate: 160},
			want:  []string{"espeak-ng", "-v", "en-us", "-s", "160", "hello"},
		},
		{
			name: "empty voice drops flag",
			argv: []string{"espeak-ng", "-v", "{voice}", "{text}"},
			want: []string{"espeak-ng", "hello"},
		},
		{
			name:      "stdin when text placeholder missing",
			argv:      []string{"piper-say", "--model", "voice.onnx"},
			want:      []string{"piper-say", "--model", "voice.onnx"},
			wantStdin: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.argv)
			if err != nil {
				t.Fatal(err)
			}
			got, stdin := p.expand("hello", tt.voice)
			if !slices.Equal(got, tt.want) {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
			if stdin != tt.wantStdin {
				t.Errorf("usesStdin = %v, want %v", stdin, tt.wantStdin)
			}
		})
	}
}

func TestSpeak_WritesTextToStdin(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "said.txt")
	p, err := New([]string{"sh", "-c", `cat > "$0"`, out})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Speak(context.Background(), "Timer finished.", tts.Voice{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "Timer finished." {
		t.Errorf("stdin = %q, want %q", got, "Timer finished.")
	}
}

func TestSpeak_DefaultVoice(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "voice.txt")
	p, _ := New([]string{"sh", "-c", `printf %s "$1" > "$0"`, out, "{voice}"},
		WithDefaultVoice(tts.Voice{Name: "en-gb"}))
	if err := p.Speak(context.Background(), "hi", tts.Voice{}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "en-gb" {
		t.Errorf("voice = %q, want en-gb", got)
	}
}

func TestSpeak_EmptyTextIsNoop(t *testing.T) {
	t.Parallel()
	p, _ := New([]string{"false"})
	if err := p.Speak(context.Background(), "  ", tts.Voice{}); err != nil {
		t.Fatalf("Speak(empty) = %v, want nil", err)
	}
}

func TestSpeak_ProgramFailure(t *testing.T) {
	t.Parallel()
	p, _ := New([]string{"sh", "-c", "echo no audio device >&2; exit 3"})
	err := p.Speak(context.Background(), "hello", tts.Voice{})
	if err == nil {
		t.Fatal("expected error from failing program")
	}
}

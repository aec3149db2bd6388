package timer

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/hearth/internal/plugin"
	"github.com/MrWong99/hearth/internal/speak"
	speakmock "github.com/MrWong99/hearth/internal/speak/mock"
)

func newTimer(t *testing.T, s speak.Speaker) *Timer {
	t.Helper()
	f := Factory()
	if f.Needs != plugin.NeedSpeak {
		t.Fatalf("Needs = %s, want speak", f.Needs)
	}
	h, err := f.New(plugin.Deps{Speaker: s})
	if err != nil {
		t.Fatal(err)
	}
	return h.(*Timer)
}

func TestActivate_SoundThenAnnouncement(t *testing.T) {
	t.Parallel()
	s := &speakmock.Speaker{}
	if err := newTimer(t, s).Activate(context.Background(), plugin.Activation{}); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if got := s.Kinds(); !slices.Equal(got, []speak.Kind{speak.KindTimer, speak.KindText}) {
		t.Errorf("kinds = %v, want [timer text]", got)
	}
	if got := s.Texts(); !slices.Equal(got, []string{Finished}) {
		t.Errorf("texts = %v", got)
	}
	for _, ev := range s.Events {
		if !ev.Blocking {
			t.Errorf("event %v should block", ev.Kind)
		}
	}
}

func TestActivate_Label(t *testing.T) {
	t.Parallel()
	s := &speakmock.Speaker{}
	act := plugin.Activation{Payload: map[string]any{"label": "pasta"}}
	if err := newTimer(t, s).Activate(context.Background(), act); err != nil {
		t.Fatal(err)
	}
	if got := s.Texts(); len(got) != 1 || got[0] != "Your pasta timer is finished." {
		t.Errorf("texts = %v", got)
	}
}

func TestActivate_SpeakerError(t *testing.T) {
	t.Parallel()
	s := &speakmock.Speaker{Err: speak.ErrClosed}
	err := newTimer(t, s).Activate(context.Background(), plugin.Activation{})
	if !errors.Is(err, speak.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

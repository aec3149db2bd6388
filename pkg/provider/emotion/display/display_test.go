package display_test

import (
	"context"
	"testing"

	"github.com/MrWong99/hearth/pkg/provider/emotion"
	"github.com/MrWong99/hearth/pkg/provider/emotion/display"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := display.New(nil, nil); err == nil {
		t.Error("expected error for empty player")
	}
	if _, err := display.New([]string{"mpv"}, map[emotion.Category]string{"boredom": "x.mp4"}); err == nil {
		t.Error("expected error for unknown emotion")
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	// "sleep" treats the media path as its duration argument.
	d, err := display.New([]string{"sleep"}, map[emotion.Category]string{emotion.Joy: "30"})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Start(context.Background(), emotion.Anger); err != nil {
		t.Fatalf("Start(no media): %v", err)
	}
	if d.Running() {
		t.Fatal("no process expected for emotion without media")
	}

	if err := d.Start(context.Background(), emotion.Joy); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !d.Running() {
		t.Fatal("expected player to be running")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if d.Running() {
		t.Fatal("player still running after Stop")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

package stream

import (
	"errors"
	"testing"
)

func TestOpenMissingLeavesHandleUnset(t *testing.T) {
	m := NewMemoryOpener()
	h, err := Open(m.Open, "missing.mov")
	if err == nil {
		t.Fatal("expected open error")
	}
	if h == nil {
		t.Fatal("handle must be non-nil even on failure")
	}
	if h.IsOpen() {
		t.Fatal("handle should be unset")
	}
	if _, err := h.NextFrame(); !errors.Is(err, ErrUnset) {
		t.Fatalf("NextFrame err = %v, want ErrUnset", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close on unset handle: %v", err)
	}
}

func TestNativeFrameRateDefaults(t *testing.T) {
	m := NewMemoryOpener()
	m.Add("zero.mov", Clip{Width: 2, Height: 2, FPS: 0, Frames: 3})
	m.Add("neg.mov", Clip{Width: 2, Height: 2, FPS: -5, Frames: 3})
	m.Add("real.mov", Clip{Width: 2, Height: 2, FPS: 24, Frames: 3})

	tests := []struct {
		path string
		want float64
	}{
		{"zero.mov", DefaultFPS},
		{"neg.mov", DefaultFPS},
		{"real.mov", 24},
	}
	for _, tt := range tests {
		h, err := Open(m.Open, tt.path)
		if err != nil {
			t.Fatalf("open %s: %v", tt.path, err)
		}
		if got := h.NativeFrameRate(); got != tt.want {
			t.Errorf("%s: fps = %v, want %v", tt.path, got, tt.want)
		}
		h.Close()
	}
}

func TestNextFrameLoopsForever(t *testing.T) {
	m := NewMemoryOpener()
	m.Add("short.mov", Clip{Width: 2, Height: 2, FPS: 30, Frames: 5})
	h, err := Open(m.Open, "short.mov")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	// Three seconds worth of reads on a 5-frame clip.
	for i := 0; i < 90; i++ {
		f, err := h.NextFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if f == nil {
			t.Fatalf("read %d: nil frame", i)
		}
	}
	if h.Loops() < 1 {
		t.Fatalf("expected at least one loop restart, got %d", h.Loops())
	}
	if got := h.Reads(); got != 90 {
		t.Errorf("Reads = %d, want 90", got)
	}
}

func TestDecoderHiccupIsReportedNotFatal(t *testing.T) {
	m := NewMemoryOpener()
	m.Add("glitch.mov", Clip{Width: 2, Height: 2, Frames: 4, FailFrame: 2})
	h, err := Open(m.Open, "glitch.mov")
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.NextFrame(); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if _, err := h.NextFrame(); err == nil {
		t.Fatal("frame 2 should fail")
	}
	if _, err := h.NextFrame(); err != nil {
		t.Fatalf("frame 3 after hiccup: %v", err)
	}
	if !h.IsOpen() {
		t.Fatal("handle must stay open after a hiccup")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewMemoryOpener()
	m.Add("a.mov", Clip{Width: 2, Height: 2, Frames: 2})
	h, err := Open(m.Open, "a.mov")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if got := m.Closed("a.mov"); got != 1 {
		t.Fatalf("decoder closed %d times, want 1", got)
	}
	if _, err := h.NextFrame(); !errors.Is(err, ErrClosed) {
		t.Fatalf("NextFrame after close = %v, want ErrClosed", err)
	}
}

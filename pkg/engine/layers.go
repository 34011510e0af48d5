package engine

import (
	"fmt"
	"strings"

	"story-stage/pkg/stream"
)

// Slot names an overlay layer.
type Slot int

const (
	// SlotFront is drawn last, on top of everything but the subtitle.
	SlotFront Slot = iota
	// SlotBack is drawn between the background and the front overlay.
	SlotBack
)

// String returns human-readable slot name
func (s Slot) String() string {
	switch s {
	case SlotFront:
		return "front"
	case SlotBack:
		return "back"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

func (s Slot) valid() bool {
	return s == SlotFront || s == SlotBack
}

// ParseSlot accepts "front"/"ch1" and "back"/"ch2".
func ParseSlot(name string) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "front", "ch1", "1":
		return SlotFront, nil
	case "back", "ch2", "2":
		return SlotBack, nil
	}
	return 0, fmt.Errorf("unknown overlay slot %q", name)
}

// layerSet holds the open streams. Handles are nil or open; a handle that
// failed to open never enters the set.
type layerSet struct {
	background *stream.Handle
	front      *stream.Handle
	back       *stream.Handle
}

func (l *layerSet) swap(slot Slot, h *stream.Handle) *stream.Handle {
	var old *stream.Handle
	switch slot {
	case SlotFront:
		old, l.front = l.front, h
	case SlotBack:
		old, l.back = l.back, h
	}
	return old
}

func (l *layerSet) path(slot Slot) string {
	var h *stream.Handle
	switch slot {
	case SlotFront:
		h = l.front
	case SlotBack:
		h = l.back
	}
	if h == nil {
		return ""
	}
	return h.Path()
}

func (l *layerSet) detachAll() []*stream.Handle {
	var out []*stream.Handle
	for _, h := range []*stream.Handle{l.background, l.front, l.back} {
		if h != nil {
			out = append(out, h)
		}
	}
	*l = layerSet{}
	return out
}

// snapshot is the layer set as seen by one tick.
type snapshot struct {
	background *stream.Handle
	front      *stream.Handle
	back       *stream.Handle
}

func (l *layerSet) snapshot() snapshot {
	return snapshot{background: l.background, front: l.front, back: l.back}
}

// frameInterval is the tick budget: one frame at the fastest active stream.
func (s snapshot) frameInterval(defaultFPS float64) float64 {
	fps := 0.0
	for _, h := range []*stream.Handle{s.background, s.front, s.back} {
		if h == nil {
			continue
		}
		if r := h.NativeFrameRate(); r > fps {
			fps = r
		}
	}
	if fps <= 0 {
		fps = defaultFPS
	}
	return 1 / fps
}

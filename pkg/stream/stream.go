package stream

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"story-stage/pkg/frame"
)

// DefaultFPS is reported when the decoder has no usable frame rate.
const DefaultFPS = 30.0

var (
	// ErrUnset is returned when reading from a handle that never opened.
	ErrUnset = errors.New("stream: handle unset")
	// ErrClosed is returned when reading from a released handle.
	ErrClosed = errors.New("stream: handle closed")
)

// Decoder is one decode session on a media file. NextFrame returns io.EOF at
// end of stream; Rewind seeks back to position zero.
type Decoder interface {
	NextFrame() (*frame.Frame, error)
	Rewind() error
	FPS() float64
	Close() error
}

// Opener opens a decoder for a path.
type Opener func(path string) (Decoder, error)

type state int

const (
	stateUnset state = iota
	stateOpen
	stateClosed
)

// Handle wraps one loopable video source. Reads and Close are serialised by
// the handle's own mutex so a slot swap can release a handle that the render
// loop is still reading.
type Handle struct {
	path string

	mu    sync.Mutex
	dec   Decoder
	state state
	fps   float64
	loops int
	reads uint64
}

// Open creates a handle for path. On failure the handle is returned in the
// unset state together with the error, so callers can keep a non-nil value
// and treat it as "no contribution".
func Open(open Opener, path string) (*Handle, error) {
	h := &Handle{path: path, fps: DefaultFPS}
	if open == nil {
		return h, fmt.Errorf("open %s: no decoder backend", path)
	}
	dec, err := open(path)
	if err != nil {
		return h, fmt.Errorf("open %s: %w", path, err)
	}
	h.dec = dec
	h.state = stateOpen
	if fps := dec.FPS(); fps > 0 {
		h.fps = fps
	}
	return h, nil
}

// Path returns the path the handle was opened for.
func (h *Handle) Path() string {
	return h.path
}

// IsOpen reports whether the handle is decodable.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateOpen
}

// NativeFrameRate returns the decoder-reported rate, or DefaultFPS.
func (h *Handle) NativeFrameRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fps
}

// Loops returns how many times the stream restarted from zero.
func (h *Handle) Loops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loops
}

// Reads returns the number of frames delivered so far.
func (h *Handle) Reads() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}

// NextFrame returns the next frame. At end of stream it rewinds and retries
// once, so looping streams never surface io.EOF to the caller.
func (h *Handle) NextFrame() (*frame.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateUnset:
		return nil, ErrUnset
	case stateClosed:
		return nil, ErrClosed
	}

	f, err := h.dec.NextFrame()
	if errors.Is(err, io.EOF) {
		if rerr := h.dec.Rewind(); rerr != nil {
			return nil, fmt.Errorf("rewind %s: %w", h.path, rerr)
		}
		h.loops++
		f, err = h.dec.NextFrame()
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", h.path, err)
	}
	h.reads++
	return f, nil
}

// Close releases decoder resources. Safe on unset and already closed handles.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != stateOpen {
		h.state = stateClosed
		return nil
	}
	h.state = stateClosed
	dec := h.dec
	h.dec = nil
	return dec.Close()
}

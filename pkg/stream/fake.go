package stream

import (
	"fmt"
	"io"
	"sync"

	"story-stage/pkg/frame"
)

// Clip describes a synthetic video used by MemoryOpener: a fixed number of
// solid-colour frames. It lets the engine run and be tested without FFmpeg.
type Clip struct {
	Width, Height int
	FPS           float64
	Frames        int
	// Color returns the colour of frame i. Nil means mid grey.
	Color func(i int) (r, g, b, a uint8)
	// HasAlpha marks frames as carrying a real alpha channel.
	HasAlpha bool
	// FailFrame makes NextFrame return an error for that frame (1-based,
	// 0 disables).
	FailFrame int
}

// MemoryOpener serves registered synthetic clips by path.
type MemoryOpener struct {
	mu     sync.Mutex
	clips  map[string]Clip
	opened map[string]int
	closed map[string]int
}

// NewMemoryOpener returns an empty opener.
func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		clips:  make(map[string]Clip),
		opened: make(map[string]int),
		closed: make(map[string]int),
	}
}

// Add registers a clip under path.
func (m *MemoryOpener) Add(path string, c Clip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Frames <= 0 {
		c.Frames = 1
	}
	m.clips[path] = c
}

// Open implements Opener.
func (m *MemoryOpener) Open(path string) (Decoder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clips[path]
	if !ok {
		return nil, fmt.Errorf("no such clip: %s", path)
	}
	m.opened[path]++
	return &memoryDecoder{clip: c, path: path, owner: m}, nil
}

// Opened returns how many decoders were opened for path.
func (m *MemoryOpener) Opened(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened[path]
}

// Closed returns how many decoders for path were closed.
func (m *MemoryOpener) Closed(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[path]
}

type memoryDecoder struct {
	clip  Clip
	path  string
	owner *MemoryOpener
	pos   int
}

func (d *memoryDecoder) NextFrame() (*frame.Frame, error) {
	if d.pos >= d.clip.Frames {
		return nil, io.EOF
	}
	i := d.pos
	d.pos++
	if d.clip.FailFrame > 0 && i == d.clip.FailFrame-1 {
		return nil, fmt.Errorf("corrupt frame %d", i)
	}
	f := frame.New(d.clip.Width, d.clip.Height)
	f.HasAlpha = d.clip.HasAlpha
	r, g, b, a := uint8(128), uint8(128), uint8(128), uint8(255)
	if d.clip.Color != nil {
		r, g, b, a = d.clip.Color(i)
	}
	for p := 0; p < len(f.Pix); p += 4 {
		f.Pix[p], f.Pix[p+1], f.Pix[p+2], f.Pix[p+3] = r, g, b, a
	}
	return f, nil
}

func (d *memoryDecoder) Rewind() error {
	d.pos = 0
	return nil
}

func (d *memoryDecoder) FPS() float64 {
	return d.clip.FPS
}

func (d *memoryDecoder) Close() error {
	d.owner.mu.Lock()
	d.owner.closed[d.path]++
	d.owner.mu.Unlock()
	return nil
}

package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// SilentPlayer pretends to play clips for a fixed duration without making a
// sound. It backs rehearsals on machines without audio output and records
// what was played.
type SilentPlayer struct {
	// Default is used for existing files that were not registered with Add.
	Default time.Duration

	mu        sync.Mutex
	clips     map[string]time.Duration
	played    []string
	stopped   []string
	active    int
	maxActive int
}

// NewSilentPlayer returns a player using def for unregistered files.
func NewSilentPlayer(def time.Duration) *SilentPlayer {
	return &SilentPlayer{Default: def, clips: make(map[string]time.Duration)}
}

// Add registers a clip and its length. Registered clips need not exist on disk.
func (p *SilentPlayer) Add(path string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips[path] = d
}

// Play implements Player.
func (p *SilentPlayer) Play(path string) (*Handle, error) {
	d, err := p.length(path)
	if err != nil {
		return nil, err
	}
	return p.start(path, d), nil
}

// Loop implements Player. The clip runs until stopped.
func (p *SilentPlayer) Loop(path string) (*Handle, error) {
	if _, err := p.length(path); err != nil {
		return nil, err
	}
	return p.start(path, 0), nil
}

func (p *SilentPlayer) length(path string) (time.Duration, error) {
	p.mu.Lock()
	d, ok := p.clips[path]
	p.mu.Unlock()
	if ok {
		return d, nil
	}
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrClipMissing, path)
	}
	return p.Default, nil
}

// start plays for d, or forever when d is zero.
func (p *SilentPlayer) start(path string, d time.Duration) *Handle {
	p.mu.Lock()
	p.played = append(p.played, path)
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		var expired <-chan time.Time
		if d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-expired:
		case <-stop:
			p.mu.Lock()
			p.stopped = append(p.stopped, path)
			p.mu.Unlock()
		}
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		close(done)
	}()
	return NewManaged(func() { close(stop) }, done)
}

// Played returns the clips started so far, in order.
func (p *SilentPlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// Stopped returns the clips that were cut short.
func (p *SilentPlayer) Stopped() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stopped...)
}

// Active returns the number of clips currently playing.
func (p *SilentPlayer) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MaxConcurrent returns the highest number of clips that played at once.
func (p *SilentPlayer) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

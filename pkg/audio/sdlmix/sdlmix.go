// Package sdlmix plays cues in-process through SDL_mixer. Stopping a clip
// halts its channel immediately, which gives lower cancellation latency than
// signalling an external player.
package sdlmix

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/veandco/go-sdl2/mix"
	"github.com/veandco/go-sdl2/sdl"

	"story-stage/pkg/audio"
	"story-stage/pkg/logging"
)

const (
	pollInterval = 20 * time.Millisecond
	channels     = 8
)

// Player implements audio.Player on SDL_mixer channels. Decoded clips stay
// cached until Close, so replaying a cue or ambient track does not decode it
// again.
type Player struct {
	log zerolog.Logger

	mu     sync.Mutex
	closed bool
	chunks map[string]*mix.Chunk
	// owner maps a channel to the play currently allowed to halt it.
	owner  map[int]uint64
	plays  uint64
}

// Open initialises the SDL audio subsystem and the mixer.
func Open() (*Player, error) {
	if err := sdl.InitSubSystem(sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("init SDL audio: %w", err)
	}
	if err := mix.Init(mix.INIT_MP3 | mix.INIT_OGG | mix.INIT_FLAC); err != nil {
		// Formats missing from the local SDL_mixer build only matter for
		// clips that use them; WAV always works.
		logging.WithComponent("sdlmix").Warn().Err(err).Msg("some mixer codecs unavailable")
	}
	if err := mix.OpenAudio(mix.DEFAULT_FREQUENCY, mix.DEFAULT_FORMAT, mix.DEFAULT_CHANNELS, 1024); err != nil {
		mix.Quit()
		sdl.QuitSubSystem(sdl.INIT_AUDIO)
		return nil, fmt.Errorf("open mixer: %w", err)
	}
	mix.AllocateChannels(channels)
	return &Player{
		log:    logging.WithComponent("sdlmix"),
		chunks: make(map[string]*mix.Chunk),
		owner:  make(map[int]uint64),
	}, nil
}

// Play implements audio.Player.
func (p *Player) Play(path string) (*audio.Handle, error) {
	return p.start(path, 0)
}

// Loop implements audio.Player.
func (p *Player) Loop(path string) (*audio.Handle, error) {
	return p.start(path, -1)
}

func (p *Player) start(path string, loops int) (*audio.Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("mixer closed")
	}
	chunk, err := p.chunk(path)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	channel, err := chunk.Play(-1, loops)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("play %s: %w", path, err)
	}
	p.plays++
	id := p.plays
	p.owner[channel] = id
	p.mu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				p.release(channel, id, true)
				return
			case <-ticker.C:
				if !p.playing(channel, id) {
					p.release(channel, id, false)
					return
				}
			}
		}
	}()
	return audio.NewManaged(func() { close(stop) }, done), nil
}

// chunk returns the cached decoded clip for path. p.mu must be held.
func (p *Player) chunk(path string) (*mix.Chunk, error) {
	if c, ok := p.chunks[path]; ok {
		return c, nil
	}
	c, err := mix.LoadWAV(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", audio.ErrClipMissing, path, err)
	}
	p.chunks[path] = c
	p.log.Debug().Str("clip", path).Int("cached", len(p.chunks)).Msg("clip decoded")
	return c, nil
}

// playing reports whether play id still owns channel and it is audible.
func (p *Player) playing(channel int, id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner[channel] == id && mix.Playing(channel) != 0
}

// release gives up channel if play id still owns it, halting it when asked.
// The channel may already belong to a newer clip.
func (p *Player) release(channel int, id uint64, halt bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.owner[channel] != id {
		return
	}
	delete(p.owner, channel)
	if halt {
		mix.HaltChannel(channel)
	}
}

// Close halts every channel and shuts the mixer down.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	mix.HaltChannel(-1)
	clear(p.owner)
	for path, c := range p.chunks {
		c.Free()
		delete(p.chunks, path)
	}
	mix.CloseAudio()
	mix.Quit()
	sdl.QuitSubSystem(sdl.INIT_AUDIO)
	return nil
}

package audio

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"story-stage/pkg/logging"
)

// Ambient loops the sound of the current background. Switch only records the
// wanted source; Run applies the latest one, so stopping a slow player never
// blocks the caller.
type Ambient struct {
	player Player
	source func(video string) (string, error)
	log    zerolog.Logger

	mu      sync.Mutex
	want    string
	playing string
	handle  *Handle

	wake chan struct{}
}

// AmbientOption configures an Ambient.
type AmbientOption func(*Ambient)

// WithSource maps a background video to the file the player loops, for
// example a TrackExtractor's Extract. Without it the video is played as is.
func WithSource(fn func(video string) (string, error)) AmbientOption {
	return func(a *Ambient) { a.source = fn }
}

// NewAmbient creates an ambient loop on player.
func NewAmbient(player Player, opts ...AmbientOption) *Ambient {
	a := &Ambient{
		player: player,
		log:    logging.WithComponent("ambient"),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Switch requests path as the ambient source. "" silences it.
func (a *Ambient) Switch(path string) {
	a.mu.Lock()
	a.want = path
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Playing returns the source currently looping.
func (a *Ambient) Playing() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Run applies switches until ctx is done, then stops playback.
func (a *Ambient) Run(ctx context.Context) error {
	defer a.apply("")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.wake:
			a.mu.Lock()
			want := a.want
			a.mu.Unlock()
			a.apply(want)
		}
	}
}

func (a *Ambient) apply(want string) {
	a.mu.Lock()
	if want == a.playing {
		a.mu.Unlock()
		return
	}
	old := a.handle
	a.handle = nil
	a.playing = ""
	a.mu.Unlock()

	old.Stop()
	if want == "" {
		return
	}

	track := want
	if a.source != nil {
		t, err := a.source(want)
		if err != nil {
			a.log.Warn().Err(err).Str("source", want).Msg("ambient track unavailable")
			return
		}
		track = t
	}

	h, err := a.player.Loop(track)
	if err != nil {
		a.log.Warn().Err(err).Str("source", want).Msg("ambient audio unavailable")
		return
	}
	a.mu.Lock()
	a.handle = h
	a.playing = want
	a.mu.Unlock()
	a.log.Info().Str("source", want).Str("track", track).Msg("ambient audio looping")
}

package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"story-stage/pkg/logging"
)

// ErrClipMissing is returned when a clip path does not exist.
var ErrClipMissing = errors.New("audio: clip missing")

// repeatMinRun is the shortest play Repeat restarts. A clip that ends sooner
// cannot really be played and would otherwise respawn the player in a spin.
const repeatMinRun = 50 * time.Millisecond

// Player starts playback of audio files. Both methods return as soon as
// playback has started; the handle reports completion.
type Player interface {
	Play(path string) (*Handle, error)
	// Loop plays path repeatedly until the handle is stopped.
	Loop(path string) (*Handle, error)
}

// ProcessPlayer plays clips through an external command line player.
// ffplay gets its usual flags and loops natively; any other command (afplay
// included) receives Args followed by the path and is restarted to loop.
type ProcessPlayer struct {
	Command string
	Args    []string
}

// DefaultPlayerCommand picks the stock player for the platform.
func DefaultPlayerCommand() string {
	if runtime.GOOS == "darwin" {
		return "afplay"
	}
	return "ffplay"
}

// NewProcessPlayer returns a player for command, or the platform default.
func NewProcessPlayer(command string, args ...string) *ProcessPlayer {
	if command == "" {
		command = DefaultPlayerCommand()
	}
	return &ProcessPlayer{Command: command, Args: args}
}

// Play implements Player.
func (p *ProcessPlayer) Play(path string) (*Handle, error) {
	return p.start(path, false)
}

// Loop implements Player.
func (p *ProcessPlayer) Loop(path string) (*Handle, error) {
	if p.DecodesVideo() {
		return p.start(path, true)
	}
	if err := checkClip(path); err != nil {
		return nil, err
	}
	return Repeat(p.Play, path)
}

// DecodesVideo reports whether the command reads the audio track of a video
// container itself. Other players need the track extracted first.
func (p *ProcessPlayer) DecodesVideo() bool {
	return filepath.Base(p.Command) == "ffplay"
}

func (p *ProcessPlayer) start(path string, loop bool) (*Handle, error) {
	if err := checkClip(path); err != nil {
		return nil, err
	}
	h, err := StartProcess(p.Command, p.args(path, loop)...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", p.Command, err)
	}
	return h, nil
}

func (p *ProcessPlayer) args(path string, loop bool) []string {
	if !p.DecodesVideo() {
		return append(append([]string{}, p.Args...), path)
	}
	args := []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	if loop {
		args = append(args, "-loop", "0")
	}
	args = append(args, p.Args...)
	return append(args, path)
}

// Repeat loops path on a backend that can only play it once, starting it
// again each time it finishes until the returned handle is stopped. The loop
// ends early if the player fails or the clip ends almost immediately.
func Repeat(play func(path string) (*Handle, error), path string) (*Handle, error) {
	began := time.Now()
	h, err := play(path)
	if err != nil {
		return nil, err
	}

	log := logging.WithComponent("audio")
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				h.Stop()
				return
			case <-h.Done():
			}
			select {
			case <-stop:
				return
			default:
			}

			if err := h.Wait(); err != nil {
				log.Warn().Err(err).Str("clip", path).Msg("loop ended by player error")
				return
			}
			if time.Since(began) < repeatMinRun {
				log.Warn().Str("clip", path).Msg("clip too short to loop")
				return
			}

			began = time.Now()
			next, err := play(path)
			if err != nil {
				log.Warn().Err(err).Str("clip", path).Msg("loop restart failed")
				return
			}
			h = next
		}
	}()
	return NewManaged(func() { close(stop) }, done), nil
}

func checkClip(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrClipMissing, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrClipMissing, path)
	}
	return nil
}

package audio

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TrackExtractor pulls the audio track out of a video into a WAV file, so
// players that cannot read video containers (afplay, SDL_mixer) can loop a
// background's sound. Results are cached on disk by source path, size and
// modification time.
type TrackExtractor struct {
	// Command is the ffmpeg binary.
	Command string
	// Dir holds the extracted tracks.
	Dir string

	run func(name string, args ...string) error
	mu  sync.Mutex
}

// NewTrackExtractor writes tracks under dir, or a temp directory when dir
// is empty.
func NewTrackExtractor(dir string) *TrackExtractor {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "story-stage-tracks")
	}
	return &TrackExtractor{Command: "ffmpeg", Dir: dir, run: runQuiet}
}

// Extract returns the WAV path for video, running ffmpeg on a cache miss.
func (x *TrackExtractor) Extract(video string) (string, error) {
	info, err := os.Stat(video)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrClipMissing, video)
	}
	abs, err := filepath.Abs(video)
	if err != nil {
		abs = video
	}
	key := fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	out := filepath.Join(x.Dir, uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()+".wav")

	x.mu.Lock()
	defer x.mu.Unlock()
	if st, err := os.Stat(out); err == nil && st.Size() > 0 {
		return out, nil
	}
	if err := os.MkdirAll(x.Dir, 0o755); err != nil {
		return "", fmt.Errorf("track dir: %w", err)
	}

	tmp := out + ".part"
	args := []string{
		"-y", "-v", "error", "-i", video,
		"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
		"-f", "wav", tmp,
	}
	if err := x.run(x.Command, args...); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("extract audio from %s: %w", video, err)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("extract audio from %s: %w", video, err)
	}
	return out, nil
}

func runQuiet(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		if msg := bytes.TrimSpace(out); len(msg) > 0 {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

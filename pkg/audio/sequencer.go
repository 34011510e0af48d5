package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"story-stage/pkg/logging"
	"story-stage/pkg/subtitle"
)

// Cue is one line to speak: a clip and the subtitle shown while it plays.
type Cue struct {
	Clip     string `yaml:"clip"`
	Subtitle string `yaml:"subtitle"`
}

// SequenceID identifies one PlayCueSequence call.
type SequenceID string

// EventKind classifies sequencer events.
type EventKind int

const (
	CueStarted EventKind = iota
	CueFinished
	CueSkipped
	SequenceFinished
	SequenceAborted
)

// String returns human-readable event kind
func (k EventKind) String() string {
	switch k {
	case CueStarted:
		return "cue-started"
	case CueFinished:
		return "cue-finished"
	case CueSkipped:
		return "cue-skipped"
	case SequenceFinished:
		return "sequence-finished"
	case SequenceAborted:
		return "sequence-aborted"
	default:
		return "unknown"
	}
}

// Event reports sequencer progress. Index is -1 for sequence-level events.
type Event struct {
	Kind     EventKind
	Sequence SequenceID
	Index    int
	Cue      Cue
	At       time.Time
	Err      error
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithObserver registers a callback for every event. It runs on the
// sequence goroutine and must not block.
func WithObserver(fn func(Event)) SequencerOption {
	return func(s *Sequencer) { s.observer = fn }
}

// WithCancelGrace sets how long CancelAll blocks new cue starts.
func WithCancelGrace(d time.Duration) SequencerOption {
	return func(s *Sequencer) { s.token = NewToken(d) }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) SequencerOption {
	return func(s *Sequencer) { s.log = l }
}

// Sequencer plays cue lists one clip at a time. At most one sequence is
// audible: starting a sequence stops the one in flight.
type Sequencer struct {
	player   Player
	line     *subtitle.Line
	token    *Token
	log      zerolog.Logger
	observer func(Event)

	mu      sync.Mutex
	current *Handle
	// halted was cut off by CancelAll and may still be winding down.
	halted  *Handle
	active  SequenceID

	wg sync.WaitGroup
}

// NewSequencer creates a sequencer writing subtitles into line.
func NewSequencer(player Player, line *subtitle.Line, opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		player: player,
		line:   line,
		token:  NewToken(DefaultCancelGrace),
		log:    logging.WithComponent("sequencer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token exposes the cancellation token.
func (s *Sequencer) Token() *Token {
	return s.token
}

// Play starts a new sequence and returns immediately. A sequence already in
// flight is cut off first.
func (s *Sequencer) Play(cues []Cue) SequenceID {
	id := SequenceID(uuid.NewString())

	s.mu.Lock()
	gen := s.token.Begin()
	prev, halted := s.current, s.halted
	prevID := s.active
	s.current, s.halted = nil, nil
	s.active = id
	s.mu.Unlock()

	if prev != nil {
		s.log.Info().Str("sequence", string(prevID)).Msg("superseded by new sequence")
		prev.Stop()
	}
	// Never start over a clip that is still dying.
	halted.Stop()

	s.log.Info().Str("sequence", string(id)).Int("cues", len(cues)).Msg("sequence started")
	s.wg.Add(1)
	go s.run(id, gen, append([]Cue(nil), cues...))
	return id
}

// CancelAll stops narration right away: the playing clip is halted, the
// subtitle cleared and the sequence abandons its remaining cues at its next
// check. It does not wait for the player to exit, so it is safe to call from
// the display thread. Calling it repeatedly is harmless.
func (s *Sequencer) CancelAll() {
	s.mu.Lock()
	s.token.Cancel()
	h := s.current
	s.current = nil
	if h != nil {
		s.halted = h
	}
	s.mu.Unlock()

	s.line.Clear()
	if h != nil {
		h.Halt()
		s.log.Info().Msg("playing cue stopped")
	}
}

// Playing reports whether a clip is currently audible.
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Close cancels everything and waits for sequence goroutines and halted
// players to exit.
func (s *Sequencer) Close() {
	s.CancelAll()
	s.wg.Wait()

	s.mu.Lock()
	h := s.halted
	s.halted = nil
	s.mu.Unlock()
	h.Stop()
}

func (s *Sequencer) run(id SequenceID, gen uint64, cues []Cue) {
	defer s.wg.Done()
	log := s.log.With().Str("sequence", string(id)).Logger()

	for i, cue := range cues {
		if !s.token.Valid(gen) {
			s.abort(log, id, gen, len(cues)-i)
			return
		}

		h, err := s.player.Play(cue.Clip)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("clip", cue.Clip).Msg("skipping cue")
			s.emit(Event{Kind: CueSkipped, Sequence: id, Index: i, Cue: cue, Err: err})
			continue
		}

		s.mu.Lock()
		if !s.token.Valid(gen) {
			s.mu.Unlock()
			h.Stop()
			s.abort(log, id, gen, len(cues)-i)
			return
		}
		s.current = h
		s.mu.Unlock()

		s.line.SetIf(gen, cue.Subtitle, s.token.Valid)
		s.emit(Event{Kind: CueStarted, Sequence: id, Index: i, Cue: cue})
		log.Debug().Int("index", i).Str("clip", cue.Clip).Msg("cue playing")

		err = h.Wait()

		s.mu.Lock()
		if s.current == h {
			s.current = nil
		}
		s.mu.Unlock()

		if err != nil {
			log.Warn().Err(err).Int("index", i).Str("clip", cue.Clip).Msg("player exited with error")
		}
		s.emit(Event{Kind: CueFinished, Sequence: id, Index: i, Cue: cue, Err: err})
	}

	if !s.token.Valid(gen) {
		s.abort(log, id, gen, 0)
		return
	}
	s.line.ClearIf(gen)
	s.emit(Event{Kind: SequenceFinished, Sequence: id, Index: -1})
	log.Info().Msg("sequence finished")
}

func (s *Sequencer) abort(log zerolog.Logger, id SequenceID, gen uint64, remaining int) {
	s.line.ClearIf(gen)
	s.emit(Event{Kind: SequenceAborted, Sequence: id, Index: -1})
	log.Info().Int("remaining", remaining).Msg("sequence aborted")
}

func (s *Sequencer) emit(ev Event) {
	if s.observer == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.observer(ev)
}

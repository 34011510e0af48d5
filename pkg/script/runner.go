package script

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"story-stage/pkg/audio"
	"story-stage/pkg/engine"
	"story-stage/pkg/logging"
)

// Stage is the control surface a script drives. *engine.Engine implements it.
type Stage interface {
	SetBackground(target string)
	SetOverlay(slot engine.Slot, target string) error
	PlayCueSequence(cues []audio.Cue) audio.SequenceID
	CancelAllAudio()
}

// Runner plays a script against a stage in real time.
type Runner struct {
	stage Stage
	log   zerolog.Logger
	after func(time.Duration) <-chan time.Time
}

// NewRunner creates a runner for stage.
func NewRunner(stage Stage) *Runner {
	return &Runner{
		stage: stage,
		log:   logging.WithComponent("script"),
		after: time.After,
	}
}

// Run executes the steps in order, each at its offset from the call. Step
// failures are logged and the script carries on. Run returns ctx.Err() when
// stopped early.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	start := time.Now()
	r.log.Info().Str("script", s.Name).Int("steps", len(s.Steps)).Dur("length", s.Duration()).Msg("rehearsal started")

	for i, st := range s.Steps {
		if wait := st.At - time.Since(start); wait > 0 {
			select {
			case <-ctx.Done():
				r.log.Info().Str("script", s.Name).Int("step", i+1).Msg("rehearsal stopped")
				return ctx.Err()
			case <-r.after(wait):
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		r.apply(i+1, st)
	}

	r.log.Info().Str("script", s.Name).Dur("elapsed", time.Since(start)).Msg("rehearsal finished")
	return nil
}

func (r *Runner) apply(n int, st Step) {
	ev := r.log.Debug().Int("step", n).Str("action", string(st.Action)).Dur("at", st.At)
	switch st.Action {
	case ActionBackground:
		r.stage.SetBackground(st.Target)
	case ActionBlank:
		r.stage.SetBackground("")
	case ActionOverlay:
		slot, err := engine.ParseSlot(st.Slot)
		if err != nil {
			r.log.Warn().Err(err).Int("step", n).Msg("step skipped")
			return
		}
		if err := r.stage.SetOverlay(slot, st.Target); err != nil {
			r.log.Warn().Err(err).Int("step", n).Str("target", st.Target).Msg("overlay step failed")
		}
	case ActionCues:
		id := r.stage.PlayCueSequence(st.Cues)
		ev = ev.Str("sequence", string(id))
	case ActionCancelAudio:
		r.stage.CancelAllAudio()
	}
	ev.Str("target", st.Target).Msg("step applied")
}

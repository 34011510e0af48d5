package display

import (
	"context"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"story-stage/pkg/engine"
	"story-stage/pkg/frame"
	"story-stage/pkg/input"
)

// presentRate caps the present loop; vsync usually paces it first.
const presentRate = 60

// Stage is the part of the engine the window drives.
type Stage interface {
	SetBackground(target string)
	SetOverlay(slot engine.Slot, target string) error
	CancelAllAudio()
	FrameInto(dst *frame.Frame) uint64
	Stats() engine.Stats
}

// Run presents stage frames until the window closes, Esc is pressed or ctx
// is done. scenes maps number keys 1-9 to background targets. It must run on
// the thread that called Init.
func (w *Window) Run(ctx context.Context, stage Stage, scenes []string) error {
	operator := input.NewOperator()
	interval := time.Second / presentRate

	var (
		buf       frame.Frame
		lastSeq   uint64
		uploads   int
		fps       float64
		fpsWindow = time.Now()
	)

	for {
		start := time.Now()
		if ctx.Err() != nil {
			return nil
		}

		for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
			if _, ok := ev.(*sdl.QuitEvent); ok {
				w.log.Info().Msg("window closed")
				return nil
			}
		}

		for _, cmd := range operator.Poll(sdl.GetKeyboardState()) {
			switch dispatch(stage, scenes, cmd) {
			case resultQuit:
				w.log.Info().Msg("operator quit")
				return nil
			case resultToggleHUD:
				w.ToggleHUD()
			}
		}

		if seq := stage.FrameInto(&buf); seq != lastSeq || w.texture == nil {
			lastSeq = seq
			if err := w.Upload(&buf); err != nil {
				return err
			}
			uploads++
		}

		if since := time.Since(fpsWindow); since >= time.Second {
			fps = float64(uploads) / since.Seconds()
			uploads = 0
			fpsWindow = time.Now()
		}

		var lines []string
		if w.showHUD {
			lines = StatusLines(stage.Stats(), fps)
		}
		if err := w.Draw(lines); err != nil {
			return err
		}

		if elapsed := time.Since(start); elapsed < interval {
			time.Sleep(interval - elapsed)
		}
	}
}

type result int

const (
	resultNone result = iota
	resultToggleHUD
	resultQuit
)

// dispatch applies one operator command to the stage.
func dispatch(stage Stage, scenes []string, cmd input.Command) result {
	switch cmd.Action {
	case input.ActionScene:
		if cmd.Scene >= 0 && cmd.Scene < len(scenes) {
			stage.SetBackground(scenes[cmd.Scene])
		}
	case input.ActionBlank:
		stage.SetBackground("")
	case input.ActionClearOverlays:
		stage.SetOverlay(engine.SlotFront, "")
		stage.SetOverlay(engine.SlotBack, "")
	case input.ActionCancelAudio:
		stage.CancelAllAudio()
	case input.ActionToggleHUD:
		return resultToggleHUD
	case input.ActionQuit:
		return resultQuit
	}
	return resultNone
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"story-stage/pkg/compositor"
	"story-stage/pkg/frame"
	"story-stage/pkg/performance"
	"story-stage/pkg/stream"
)

// run is the render loop. It only returns when ctx is done.
func (e *Engine) run(ctx context.Context) error {
	// Decoding and blending get a thread of their own.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		budget := e.safeTick(start)
		elapsed := time.Since(start)

		overrun := elapsed > time.Duration(float64(budget)*e.cfg.OverrunFactor)
		e.monitor.RecordTick(performance.Tick{
			Decode:    e.lastDecode,
			Composite: e.lastComposite,
			Total:     elapsed,
			Budget:    budget,
			Overrun:   overrun,
		})
		if overrun || elapsed >= budget {
			// Drop-frame policy: start the next tick right away instead of
			// trying to catch up.
			continue
		}

		timer.Reset(budget - elapsed)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// safeTick runs one tick and turns a panic into a logged, counted fault.
func (e *Engine) safeTick(wall time.Time) (budget time.Duration) {
	budget = time.Duration(float64(time.Second) / e.cfg.DefaultFPS)
	defer func() {
		if r := recover(); r != nil {
			e.monitor.RecordPanic()
			if e.limiter.Allow("panic", wall) {
				e.log.Error().Interface("panic", r).Msg("render tick failed")
			}
		}
	}()
	return e.tick(e.now())
}

// tick advances the transition, reads one frame per layer, composites and
// publishes. It returns the frame interval for the current layer set.
func (e *Engine) tick(now time.Time) time.Duration {
	e.mu.Lock()
	step := e.trans.Advance(now)
	var released *stream.Handle
	if step.Switch {
		released = e.layers.background
		e.layers.background = nil
	}
	e.mu.Unlock()

	if step.Switch {
		e.switchBackground(released, step.Target, now)
	}

	e.mu.Lock()
	snap := e.layers.snapshot()
	e.mu.Unlock()

	decodeStart := time.Now()
	bg := e.readBackground(snap.background, now)
	var back, front *frame.Frame
	if snap.back != nil {
		back = e.readLayer("back", snap.back, now)
	}
	if snap.front != nil {
		front = e.readLayer("front", snap.front, now)
	}
	e.lastDecode = time.Since(decodeStart)

	compStart := time.Now()
	out := e.comp.Compose(compositor.Layers{
		Background: bg,
		Back:       back,
		Front:      front,
		Alpha:      step.Alpha,
		Subtitle:   e.line.Text(),
	})
	e.lastComposite = time.Since(compStart)

	e.publish(out)
	return time.Duration(snap.frameInterval(e.cfg.DefaultFPS) * float64(time.Second))
}

// switchBackground releases the old stream and opens target outside the
// layer lock, then installs the new handle.
func (e *Engine) switchBackground(old *stream.Handle, target string, now time.Time) {
	old.Close()
	e.lastBG, e.lastBGSrc = nil, nil

	if target == "" {
		if e.ambient != nil {
			e.ambient.Switch("")
		}
		e.log.Info().Msg("background released, stage is blank")
		return
	}

	h, err := stream.Open(e.open, target)
	if err != nil {
		e.log.Warn().Err(err).Str("path", target).Msg("background unavailable, showing black")
		if e.ambient != nil {
			e.ambient.Switch("")
		}
		e.mu.Lock()
		e.trans.Abandon(now)
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.layers.background = h
	e.mu.Unlock()

	if e.ambient != nil {
		e.ambient.Switch(target)
	}
	e.log.Info().Str("path", target).Float64("fps", h.NativeFrameRate()).Msg("background switched")
}

// readBackground returns the next background frame. On a decoder hiccup the
// previous frame of the same stream is held for this tick so the stage does
// not flash black.
func (e *Engine) readBackground(h *stream.Handle, now time.Time) *frame.Frame {
	if h == nil {
		return nil
	}
	f := e.readLayer("background", h, now)
	if f != nil {
		e.lastBG, e.lastBGSrc = f, h
		return f
	}
	if e.lastBGSrc == h {
		return e.lastBG
	}
	return nil
}

func (e *Engine) readLayer(name string, h *stream.Handle, now time.Time) (f *frame.Frame) {
	defer func() {
		if r := recover(); r != nil {
			f = nil
			e.layerFault(name, h, fmt.Errorf("panic: %v", r), now)
		}
	}()

	f, err := h.NextFrame()
	if err != nil {
		// A handle closed by a concurrent swap is expected, not a fault.
		if !errors.Is(err, stream.ErrClosed) {
			e.layerFault(name, h, err, now)
		}
		return nil
	}
	return f
}

func (e *Engine) layerFault(name string, h *stream.Handle, err error, now time.Time) {
	e.monitor.RecordLayerFault(name)
	if e.limiter.Allow("layer:"+name, now) {
		e.log.Warn().Err(err).Str("layer", name).Str("path", h.Path()).Msg("layer skipped for this tick")
	}
}

func (e *Engine) publish(f *frame.Frame) {
	e.frameMu.Lock()
	e.latest = f
	e.frameSeq++
	e.frameMu.Unlock()
}

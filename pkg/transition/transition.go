package transition

import (
	"time"
)

// DefaultDuration is the length of each half of a crossfade.
const DefaultDuration = 500 * time.Millisecond

// Phase is the crossfade state.
type Phase int

const (
	Steady Phase = iota
	FadeOut
	FadeIn
)

// String returns human-readable phase name
func (p Phase) String() string {
	switch p {
	case Steady:
		return "steady"
	case FadeOut:
		return "fade-out"
	case FadeIn:
		return "fade-in"
	default:
		return "unknown"
	}
}

// Step is the result of advancing the controller to a point in time.
type Step struct {
	Phase Phase
	// Alpha is the background weight against black, 1 = fully visible.
	Alpha float64
	// Switch is set on the single step where the background stream must be
	// replaced by Target ("" means release it and stay blank).
	Switch bool
	Target string
}

// Controller tracks at most one crossfade. Targets are background paths;
// the empty string is the blank sentinel.
//
// The controller is not safe for concurrent use: the engine guards it with
// the layer-set mutex.
type Controller struct {
	duration time.Duration

	phase       Phase
	fadeOutAt   time.Time
	fadeInAt    time.Time
	current     string
	pending     string
	switchDue   bool
	queued      string
	queuedValid bool
}

// New creates a controller with the given half-fade duration.
func New(duration time.Duration) *Controller {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Controller{duration: duration}
}

// Duration returns the half-fade duration.
func (c *Controller) Duration() time.Duration {
	return c.duration
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// Current returns the background target that is (or is about to be) on screen.
func (c *Controller) Current() string {
	return c.current
}

// Pending returns the target waiting for the end of the fade-out, if any.
func (c *Controller) Pending() (string, bool) {
	switch {
	case c.phase == FadeOut:
		return c.pending, true
	case c.queuedValid:
		return c.queued, true
	}
	return "", false
}

// Request asks for a new background. It reports whether the request changed
// anything.
//
// From STEADY with something on screen it starts a fade-out. From STEADY
// while blank it switches right away and fades in from black. During a
// fade-out the pending target is overwritten without restarting the
// animation. During a fade-in the target is queued and a new fade-out starts
// once the fade-in completes.
func (c *Controller) Request(target string, now time.Time) bool {
	switch c.phase {
	case FadeOut:
		c.pending = target
		return true

	case FadeIn:
		if target == c.current {
			changed := c.queuedValid
			c.queuedValid = false
			c.queued = ""
			return changed
		}
		c.queued = target
		c.queuedValid = true
		return true
	}

	if target == c.current {
		return false
	}
	if c.current == "" {
		c.current = target
		c.switchDue = true
		c.phase = FadeIn
		c.fadeInAt = now
		return true
	}
	c.phase = FadeOut
	c.fadeOutAt = now
	c.pending = target
	return true
}

// Advance moves the state machine to now and returns the alpha to apply and
// whether the stream switch must happen on this tick.
func (c *Controller) Advance(now time.Time) Step {
	switch c.phase {
	case FadeOut:
		elapsed := now.Sub(c.fadeOutAt)
		if elapsed < c.duration {
			return Step{Phase: FadeOut, Alpha: 1 - ratio(elapsed, c.duration)}
		}

		step := Step{Switch: c.pending != c.current, Target: c.pending}
		c.current = c.pending
		c.pending = ""

		if c.current == "" {
			// Blank stays blank until a real target arrives.
			c.phase = Steady
			step.Phase = Steady
			step.Alpha = 1
			return step
		}

		c.phase = FadeIn
		c.fadeInAt = c.fadeOutAt.Add(c.duration)
		step.Phase, step.Alpha = c.advanceFadeIn(now)
		return step

	case FadeIn:
		step := Step{}
		if c.switchDue {
			c.switchDue = false
			step.Switch = true
			step.Target = c.current
		}
		step.Phase, step.Alpha = c.advanceFadeIn(now)
		return step
	}

	return Step{Phase: Steady, Alpha: 1}
}

func (c *Controller) advanceFadeIn(now time.Time) (Phase, float64) {
	elapsed := now.Sub(c.fadeInAt)
	if elapsed < c.duration {
		return FadeIn, ratio(elapsed, c.duration)
	}

	c.phase = Steady
	if c.queuedValid {
		next := c.queued
		c.queued = ""
		c.queuedValid = false
		if next != c.current {
			c.phase = FadeOut
			c.fadeOutAt = now
			c.pending = next
		}
	}
	return c.phase, 1
}

// Abandon is called when the stream for Current could not be opened. The
// controller drops back to blank and STEADY so the next request for the same
// target is not ignored; a target queued during the fade-in is requested
// again.
func (c *Controller) Abandon(now time.Time) {
	next, hasNext := c.queued, c.queuedValid
	*c = Controller{duration: c.duration}
	if hasNext {
		c.Request(next, now)
	}
}

// Reset forgets any in-flight transition and the current target.
func (c *Controller) Reset() {
	*c = Controller{duration: c.duration}
}

func ratio(elapsed, total time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	r := float64(elapsed) / float64(total)
	if r > 1 {
		return 1
	}
	return r
}

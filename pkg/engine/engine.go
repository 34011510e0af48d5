package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"story-stage/pkg/audio"
	"story-stage/pkg/compositor"
	"story-stage/pkg/config"
	"story-stage/pkg/frame"
	"story-stage/pkg/logging"
	"story-stage/pkg/performance"
	"story-stage/pkg/stream"
	"story-stage/pkg/subtitle"
	"story-stage/pkg/transition"
)

var (
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("engine: already started")
	// ErrClosed is returned by SetOverlay after Shutdown.
	ErrClosed = errors.New("engine: shut down")
)

// Config holds the engine's tunables.
type Config struct {
	Width, Height int
	DefaultFPS    float64
	OverrunFactor float64
	FadeDuration  time.Duration
	CancelGrace   time.Duration
	Ambient       bool
	Compositor    compositor.Options

	StatsInterval  time.Duration
	MemoryInterval time.Duration
}

// FromConfig maps the file configuration onto engine settings.
func FromConfig(c *config.Config) Config {
	var scaler draw.Interpolator = draw.BiLinear
	if c.Compositor.Scaler == "nearest" {
		scaler = draw.NearestNeighbor
	}
	return Config{
		Width:         c.Output.Width,
		Height:        c.Output.Height,
		DefaultFPS:    c.Output.DefaultFPS,
		OverrunFactor: c.Output.OverrunFactor,
		FadeDuration:  c.Transition.FadeDuration,
		CancelGrace:   c.Audio.CancelGrace,
		Ambient:       c.Audio.Ambient,
		Compositor: compositor.Options{
			Width:         c.Output.Width,
			Height:        c.Output.Height,
			MaskThreshold: uint8(c.Compositor.MaskThreshold),
			Scaler:        scaler,
			Subtitle: compositor.SubtitleStyle{
				FontPath:      c.Subtitles.FontPath,
				FontSize:      c.Subtitles.FontSize,
				Outline:       c.Subtitles.OutlineWidth,
				BottomMargin:  c.Subtitles.BottomMargin,
				MaxWidthRatio: c.Subtitles.MaxWidthRatio,
				MaxLines:      c.Subtitles.MaxLines,
			},
		},
		StatsInterval:  c.Stats.Interval,
		MemoryInterval: c.Stats.MemoryInterval,
	}
}

func (c *Config) setDefaults() {
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = frame.DefaultWidth, frame.DefaultHeight
	}
	if c.DefaultFPS <= 0 {
		c.DefaultFPS = stream.DefaultFPS
	}
	if c.OverrunFactor < 1 {
		c.OverrunFactor = 1.5
	}
	if c.FadeDuration <= 0 {
		c.FadeDuration = transition.DefaultDuration
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = audio.DefaultCancelGrace
	}
	if c.Compositor.Width <= 0 || c.Compositor.Height <= 0 {
		c.Compositor.Width, c.Compositor.Height = c.Width, c.Height
	}
	if c.Compositor.MaskThreshold == 0 {
		c.Compositor.MaskThreshold = compositor.DefaultMaskThreshold
	}
}

// Resolver turns logical ids into media paths. *assets.Library implements it.
type Resolver interface {
	ResolveBackground(target string) (string, error)
	ResolveOverlay(target string) (string, error)
}

type passthrough struct{}

func (passthrough) ResolveBackground(t string) (string, error) { return t, nil }
func (passthrough) ResolveOverlay(t string) (string, error)    { return t, nil }

// Option configures an Engine.
type Option func(*Engine)

// WithOpener sets the video decoder backend.
func WithOpener(open stream.Opener) Option {
	return func(e *Engine) { e.open = open }
}

// WithPlayer sets the audio backend for cues and ambient sound.
func WithPlayer(p audio.Player) Option {
	return func(e *Engine) { e.player = p }
}

// WithResolver sets how targets are turned into paths.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithClock replaces time.Now for transitions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithAmbientSource maps a background path to the file the ambient loop
// plays, for backends that cannot read video containers.
func WithAmbientSource(fn func(video string) (string, error)) Option {
	return func(e *Engine) { e.ambientSrc = fn }
}

// WithSequencerObserver receives cue sequencer events.
func WithSequencerObserver(fn func(audio.Event)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine owns the layer set, the render loop and the cue sequencer.
type Engine struct {
	cfg      Config
	open     stream.Opener
	player   audio.Player
	resolver Resolver
	now      func() time.Time
	observer func(audio.Event)
	log      zerolog.Logger

	ambientSrc func(string) (string, error)

	// mu guards layers, trans and closed. Only handle swaps happen under it.
	mu     sync.Mutex
	layers layerSet
	trans  *transition.Controller
	closed bool

	frameMu  sync.Mutex
	latest   *frame.Frame
	frameSeq uint64

	line    subtitle.Line
	seq     *audio.Sequencer
	ambient *audio.Ambient

	// Render-loop only state.
	comp          *compositor.Compositor
	monitor       *performance.TickMonitor
	limiter       *logging.Limiter
	lastBG        *frame.Frame
	lastBGSrc     *stream.Handle
	lastDecode    time.Duration
	lastComposite time.Duration

	runMu     sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// New creates an engine. Nothing runs until Start.
func New(cfg Config, opts ...Option) *Engine {
	cfg.setDefaults()
	e := &Engine{
		cfg:      cfg,
		resolver: passthrough{},
		now:      time.Now,
		log:      logging.WithComponent("engine"),
		trans:    transition.New(cfg.FadeDuration),
		monitor:  performance.NewMonitor(90),
		limiter:  logging.NewLimiter(time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.player == nil {
		e.player = audio.NewProcessPlayer("")
	}

	e.comp = compositor.New(cfg.Compositor)
	seqOpts := []audio.SequencerOption{audio.WithCancelGrace(cfg.CancelGrace)}
	if e.observer != nil {
		seqOpts = append(seqOpts, audio.WithObserver(e.observer))
	}
	e.seq = audio.NewSequencer(e.player, &e.line, seqOpts...)
	if cfg.Ambient {
		var ambientOpts []audio.AmbientOption
		if e.ambientSrc != nil {
			ambientOpts = append(ambientOpts, audio.WithSource(e.ambientSrc))
		}
		e.ambient = audio.NewAmbient(e.player, ambientOpts...)
	}
	return e
}

// Start launches the render loop and its helpers. It returns immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.group != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	e.cancel = cancel
	e.group = g

	g.Go(func() error { return e.run(gctx) })
	g.Go(func() error { return e.reportStats(gctx) })
	if e.ambient != nil {
		g.Go(func() error { return e.ambient.Run(gctx) })
	}

	e.log.Info().
		Int("width", e.cfg.Width).
		Int("height", e.cfg.Height).
		Dur("fade", e.cfg.FadeDuration).
		Bool("ambient", e.ambient != nil).
		Msg("engine started")
	return nil
}

// Wait blocks until the engine stops.
func (e *Engine) Wait() error {
	e.runMu.Lock()
	g := e.group
	e.runMu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Shutdown stops the render loop, silences all audio and releases every
// stream. It is safe to call more than once.
func (e *Engine) Shutdown() error {
	e.closeOnce.Do(func() {
		e.runMu.Lock()
		cancel, g := e.cancel, e.group
		e.runMu.Unlock()

		if cancel != nil {
			cancel()
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				e.closeErr = fmt.Errorf("render loop: %w", err)
			}
		}

		e.seq.Close()

		e.mu.Lock()
		e.closed = true
		handles := e.layers.detachAll()
		e.trans.Reset()
		e.mu.Unlock()
		for _, h := range handles {
			h.Close()
		}
		e.log.Info().Msg("engine stopped")
	})
	return e.closeErr
}

// SetBackground requests a new background. "" fades to black and stays
// blank. The change is applied by the render loop through a crossfade.
func (e *Engine) SetBackground(target string) {
	path, err := e.resolver.ResolveBackground(target)
	if err != nil {
		e.log.Warn().Err(err).Str("target", target).Msg("background target not found")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.log.Warn().Str("target", target).Msg("background requested after shutdown")
		return
	}
	accepted := e.trans.Request(path, e.now())
	phase := e.trans.Phase()
	e.mu.Unlock()

	e.log.Info().
		Str("target", target).
		Str("path", path).
		Bool("accepted", accepted).
		Str("phase", phase.String()).
		Msg("background requested")
}

// SetOverlay replaces one overlay slot without a fade. "" clears the slot.
// The old stream keeps playing until the new one is open. On failure the
// slot is cleared and the open error returned.
func (e *Engine) SetOverlay(slot Slot, target string) error {
	if !slot.valid() {
		return fmt.Errorf("unknown overlay slot %d", slot)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	var (
		h       *stream.Handle
		openErr error
	)
	if target != "" {
		path, err := e.resolver.ResolveOverlay(target)
		if err != nil {
			e.log.Warn().Err(err).Str("target", target).Msg("overlay target not found")
		}
		h, openErr = stream.Open(e.open, path)
		if openErr != nil {
			h = nil
		}
	}

	e.mu.Lock()
	if e.closed {
		// Shutdown ran while the stream was opening.
		e.mu.Unlock()
		h.Close()
		return ErrClosed
	}
	old := e.layers.swap(slot, h)
	e.mu.Unlock()
	old.Close()

	ev := e.log.Info()
	if openErr != nil {
		ev = e.log.Warn().Err(openErr)
	}
	ev.Str("slot", slot.String()).Str("target", target).Bool("active", h != nil).Msg("overlay set")
	return openErr
}

// PlayCueSequence starts narrating cues in order, cutting off any sequence
// already playing.
func (e *Engine) PlayCueSequence(cues []audio.Cue) audio.SequenceID {
	return e.seq.Play(cues)
}

// CancelAllAudio stops narration at once and clears the subtitle.
func (e *Engine) CancelAllAudio() {
	e.seq.CancelAll()
}

// Frame returns a copy of the latest composited frame, or a black frame
// before the first tick.
func (e *Engine) Frame() *frame.Frame {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	if e.latest == nil {
		return frame.Black(e.cfg.Width, e.cfg.Height)
	}
	return e.latest.Clone()
}

// FrameInto copies the latest frame into dst, reusing its buffer, and
// returns the frame sequence number. It avoids an allocation per presented
// frame.
func (e *Engine) FrameInto(dst *frame.Frame) uint64 {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()
	if e.latest == nil {
		dst.CopyFrom(frame.Black(e.cfg.Width, e.cfg.Height))
		return 0
	}
	dst.CopyFrom(e.latest)
	return e.frameSeq
}

// Subtitle returns the subtitle currently shown.
func (e *Engine) Subtitle() string {
	return e.line.Text()
}

// Stats is a snapshot of engine state for the operator.
type Stats struct {
	Render     performance.Report
	Phase      transition.Phase
	Background string
	Front      string
	Back       string
	Subtitle   string
	Speaking   bool
	Ambient    string
	Frames     uint64
}

// Stats returns the current engine snapshot.
func (e *Engine) Stats() Stats {
	s := Stats{
		Render:   e.monitor.Report(),
		Subtitle: e.line.Text(),
		Speaking: e.seq.Playing(),
	}
	if e.ambient != nil {
		s.Ambient = e.ambient.Playing()
	}

	e.mu.Lock()
	s.Phase = e.trans.Phase()
	s.Background = e.trans.Current()
	s.Front = e.layers.path(SlotFront)
	s.Back = e.layers.path(SlotBack)
	e.mu.Unlock()

	e.frameMu.Lock()
	s.Frames = e.frameSeq
	e.frameMu.Unlock()
	return s
}

func (e *Engine) reportStats(ctx context.Context) error {
	if e.cfg.StatsInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	stats := time.NewTicker(e.cfg.StatsInterval)
	defer stats.Stop()

	var memC <-chan time.Time
	if e.cfg.MemoryInterval > 0 {
		mem := time.NewTicker(e.cfg.MemoryInterval)
		defer mem.Stop()
		memC = mem.C
	}

	log := logging.WithComponent("stats")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stats.C:
			performance.LogReport(log, e.monitor.Report())
		case <-memC:
			performance.LogMemory(log)
		}
	}
}

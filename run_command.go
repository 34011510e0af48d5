package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"story-stage/pkg/assets"
	"story-stage/pkg/audio"
	"story-stage/pkg/audio/sdlmix"
	"story-stage/pkg/config"
	"story-stage/pkg/display"
	"story-stage/pkg/engine"
	"story-stage/pkg/logging"
	"story-stage/pkg/mpeg"
	"story-stage/pkg/script"
	"story-stage/pkg/stream"
)

type runOptions struct {
	synthetic   bool
	headless    bool
	scriptPath  string
	memoryLimit int
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the stage: render loop, display and operator keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runStage(cmd.Context(), cfg, ctx.library(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.synthetic, "synthetic", false, "Use generated test-pattern clips and silent audio instead of the asset files")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run without a window (with --script for unattended rehearsals)")
	cmd.Flags().StringVar(&opts.scriptPath, "script", "", "Rehearsal script to play against the stage")
	cmd.Flags().IntVar(&opts.memoryLimit, "memory-limit", 0, "Soft Go heap limit in MiB, 0 leaves the runtime default")
	return cmd
}

func runStage(parent context.Context, cfg *config.Config, lib *assets.Library, opts runOptions) error {
	log := logging.WithComponent("main")
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.memoryLimit > 0 {
		debug.SetMemoryLimit(int64(opts.memoryLimit) << 20)
		log.Info().Int("mib", opts.memoryLimit).Msg("memory limit set")
	}

	var rehearsal *script.Script
	if opts.scriptPath != "" {
		s, err := script.Load(opts.scriptPath)
		if err != nil {
			return err
		}
		rehearsal = s
	} else if opts.headless {
		return errors.New("--headless needs --script")
	}

	if missing := lib.Missing(); len(missing) > 0 && !opts.synthetic {
		log.Warn().Strs("missing", missing).Msg("configured assets not on disk, they will show black")
	}

	if !opts.headless {
		if _, err := display.Init(); err != nil {
			return err
		}
		defer display.Quit()
	}

	var (
		opener stream.Opener = mpeg.Open
		player audio.Player
		closer func() error
	)
	if opts.synthetic {
		opener = syntheticOpener(lib, cfg.Output.Width, cfg.Output.Height).Open
		player = syntheticPlayer(lib, rehearsal)
	} else {
		p, c, err := newPlayer(cfg.Audio)
		if err != nil {
			return err
		}
		player, closer = p, c
	}
	if closer != nil {
		defer closer()
	}

	engOpts := []engine.Option{
		engine.WithOpener(opener),
		engine.WithPlayer(player),
		engine.WithResolver(lib),
		engine.WithSequencerObserver(func(ev audio.Event) {
			log.Debug().Str("event", ev.Kind.String()).Str("sequence", string(ev.Sequence)).Int("cue", ev.Index).Msg("cue event")
		}),
	}
	if src := ambientSource(cfg.Audio, player); src != nil {
		engOpts = append(engOpts, engine.WithAmbientSource(src))
	}
	eng := engine.New(engine.FromConfig(cfg), engOpts...)
	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	if rehearsal != nil {
		g.Go(func() error {
			err := script.NewRunner(eng).Run(gctx, rehearsal)
			if opts.headless && err == nil {
				// Let the last step play out before stopping.
				select {
				case <-gctx.Done():
				case <-time.After(cfg.Transition.FadeDuration * 2):
				}
				stop()
			}
			return ignoreCanceled(err)
		})
	}

	if opts.headless {
		<-ctx.Done()
	} else {
		win, err := display.Open(display.Options{
			Title:      cfg.Display.Title,
			Width:      int32(cfg.Output.Width),
			Height:     int32(cfg.Output.Height),
			Fullscreen: cfg.Display.Fullscreen,
			HUD:        cfg.Display.HUD,
			HUDFont:    cfg.Display.HUDFont,
		})
		if err != nil {
			return err
		}
		defer win.Close()

		if err := win.Run(ctx, eng, lib.SceneIDs()); err != nil {
			log.Error().Err(err).Msg("display stopped")
		}
		stop()
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("stage stopped")
	return nil
}

// newPlayer builds the configured audio backend and its cleanup.
func newPlayer(cfg config.AudioConfig) (audio.Player, func() error, error) {
	switch cfg.Backend {
	case config.BackendMixer:
		p, err := sdlmix.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("audio mixer: %w", err)
		}
		return p, p.Close, nil
	case config.BackendSilent:
		return audio.NewSilentPlayer(2 * time.Second), nil, nil
	default:
		return audio.NewProcessPlayer(cfg.PlayerCommand, cfg.PlayerArgs...), nil, nil
	}
}

// ambientSource returns the track extractor for backends that cannot decode
// video containers, or nil when the player reads the background directly.
func ambientSource(cfg config.AudioConfig, player audio.Player) func(string) (string, error) {
	switch p := player.(type) {
	case *audio.SilentPlayer:
		return nil
	case *audio.ProcessPlayer:
		if p.DecodesVideo() {
			return nil
		}
	}
	return audio.NewTrackExtractor(cfg.TrackDir).Extract
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

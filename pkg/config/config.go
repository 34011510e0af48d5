package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type contextKey string

const configKey contextKey = "config"

// Config holds all stage configuration.
type Config struct {
	Output     OutputConfig     `yaml:"output"`
	Transition TransitionConfig `yaml:"transition"`
	Compositor CompositorConfig `yaml:"compositor"`
	Subtitles  SubtitleConfig   `yaml:"subtitles"`
	Audio      AudioConfig      `yaml:"audio"`
	Assets     AssetsConfig     `yaml:"assets"`
	Display    DisplayConfig    `yaml:"display"`
	Logging    LoggingConfig    `yaml:"logging"`
	Stats      StatsConfig      `yaml:"stats"`
}

type OutputConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	DefaultFPS float64 `yaml:"default_fps"`
	// OverrunFactor is how far past its budget a tick may run before the
	// loop skips sleeping.
	OverrunFactor float64 `yaml:"overrun_factor"`
}

type TransitionConfig struct {
	FadeDuration time.Duration `yaml:"fade_duration"`
}

type CompositorConfig struct {
	MaskThreshold int    `yaml:"mask_threshold"`
	Scaler        string `yaml:"scaler"`
}

type SubtitleConfig struct {
	FontPath      string  `yaml:"font_path"`
	FontSize      float64 `yaml:"font_size"`
	OutlineWidth  int     `yaml:"outline_width"`
	BottomMargin  float64 `yaml:"bottom_margin"`
	MaxWidthRatio float64 `yaml:"max_width_ratio"`
	MaxLines      int     `yaml:"max_lines"`
}

type AudioConfig struct {
	// Backend is one of process, mixer or silent.
	Backend       string        `yaml:"backend"`
	PlayerCommand string        `yaml:"player_command"`
	PlayerArgs    []string      `yaml:"player_args"`
	CancelGrace   time.Duration `yaml:"cancel_grace"`
	Ambient       bool          `yaml:"ambient"`
	// TrackDir caches background audio extracted for players that cannot
	// read video files. Empty uses a temp directory.
	TrackDir      string        `yaml:"track_dir"`
}

type AssetsConfig struct {
	Dir      string            `yaml:"dir"`
	Scenes   map[string]string `yaml:"scenes"`
	Overlays map[string]string `yaml:"overlays"`
	S3       S3Config          `yaml:"s3"`
}

type S3Config struct {
	Region      string `yaml:"region"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Concurrency int    `yaml:"concurrency"`
	// Credentials come from the environment only.
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

type DisplayConfig struct {
	Title      string `yaml:"title"`
	Fullscreen bool   `yaml:"fullscreen"`
	HUD        bool   `yaml:"hud"`
	HUDFont    string `yaml:"hud_font"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StatsConfig struct {
	Interval       time.Duration `yaml:"interval"`
	MemoryInterval time.Duration `yaml:"memory_interval"`
}

// Audio backends.
const (
	BackendProcess = "process"
	BackendMixer   = "mixer"
	BackendSilent  = "silent"
)

// Load reads path (or the first config file found), applies .env and
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	// .env is optional, exported variables win over it.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			Width:         1920,
			Height:        1080,
			DefaultFPS:    30,
			OverrunFactor: 1.5,
		},
		Transition: TransitionConfig{
			FadeDuration: 500 * time.Millisecond,
		},
		Compositor: CompositorConfig{
			MaskThreshold: 10,
			Scaler:        "bilinear",
		},
		Subtitles: SubtitleConfig{
			OutlineWidth:  2,
			BottomMargin:  0.06,
			MaxWidthRatio: 0.9,
			MaxLines:      2,
		},
		Audio: AudioConfig{
			Backend:     BackendProcess,
			CancelGrace: 300 * time.Millisecond,
			Ambient:     true,
		},
		Assets: AssetsConfig{
			Dir:      filepath.Join("assets", "videos"),
			Scenes:   make(map[string]string),
			Overlays: make(map[string]string),
			S3:       S3Config{Concurrency: 4},
		},
		Display: DisplayConfig{
			Title:      "Story Stage",
			Fullscreen: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Stats: StatsConfig{
			Interval:       5 * time.Second,
			MemoryInterval: 10 * time.Second,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./stage.yaml",
		"./config/stage.yaml",
		filepath.Join(os.Getenv("HOME"), ".story-stage", "stage.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) applyEnv() {
	setString(&c.Assets.Dir, "STAGE_ASSET_DIR")
	setString(&c.Subtitles.FontPath, "STAGE_FONT_PATH")
	setString(&c.Audio.Backend, "STAGE_AUDIO_BACKEND")
	setString(&c.Logging.Level, "STAGE_LOG_LEVEL")
	setString(&c.Assets.S3.Region, "AWS_DEFAULT_REGION")
	setString(&c.Assets.S3.AccessKey, "AWS_ACCESS_KEY_ID")
	setString(&c.Assets.S3.SecretKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Assets.S3.Bucket, "STAGE_S3_BUCKET")
	setString(&c.Assets.S3.Prefix, "STAGE_S3_PREFIX")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Output.Width > 0 && c.Output.Height > 0, "output size %dx%d must be positive", c.Output.Width, c.Output.Height)
	check(c.Output.DefaultFPS > 0, "default_fps must be positive")
	check(c.Output.OverrunFactor >= 1, "overrun_factor must be at least 1")
	check(c.Transition.FadeDuration > 0, "fade_duration must be positive")
	check(c.Compositor.MaskThreshold >= 0 && c.Compositor.MaskThreshold <= 255, "mask_threshold %d outside 0-255", c.Compositor.MaskThreshold)
	check(c.Compositor.Scaler == "bilinear" || c.Compositor.Scaler == "nearest", "unknown scaler %q", c.Compositor.Scaler)
	check(c.Subtitles.MaxWidthRatio > 0 && c.Subtitles.MaxWidthRatio <= 1, "max_width_ratio must be in (0,1]")
	check(c.Subtitles.MaxLines > 0, "max_lines must be positive")
	switch c.Audio.Backend {
	case BackendProcess, BackendMixer, BackendSilent:
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.Audio.Backend))
	}
	check(c.Audio.CancelGrace > 0, "cancel_grace must be positive")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Save writes configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WithConfig stores config in context.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context, or the defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}

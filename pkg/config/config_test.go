package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	p := writeFile(t, dir, "custom.yaml", `
transition:
  fade_duration: 750ms
audio:
  backend: silent
assets:
  dir: /srv/show
  scenes:
    forest: forest.mp4
    "1": beach.mp4
`)

	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transition.FadeDuration != 750*time.Millisecond {
		t.Errorf("fade = %v", cfg.Transition.FadeDuration)
	}
	if cfg.Audio.Backend != BackendSilent {
		t.Errorf("backend = %q", cfg.Audio.Backend)
	}
	if cfg.Assets.Scenes["forest"] != "forest.mp4" || len(cfg.Assets.Scenes) != 2 {
		t.Errorf("scenes = %v", cfg.Assets.Scenes)
	}
	// Untouched sections keep their defaults.
	if cfg.Output.Width != 1920 || cfg.Output.OverrunFactor != 1.5 {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Audio.CancelGrace != 300*time.Millisecond {
		t.Errorf("grace = %v", cfg.Audio.CancelGrace)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transition.FadeDuration != 500*time.Millisecond {
		t.Fatalf("fade = %v", cfg.Transition.FadeDuration)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("STAGE_ASSET_DIR", "/media/show")
	t.Setenv("STAGE_AUDIO_BACKEND", "mixer")
	t.Setenv("STAGE_S3_BUCKET", "show-assets")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Assets.Dir != "/media/show" || cfg.Audio.Backend != BackendMixer {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Assets, cfg.Audio)
	}
	if cfg.Assets.S3.Bucket != "show-assets" || cfg.Assets.S3.SecretKey != "secret" {
		t.Fatalf("s3 = %+v", cfg.Assets.S3)
	}
}

func TestDotEnvIsRead(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	writeFile(t, dir, ".env", "STAGE_S3_PREFIX=shows/spring/\n")
	t.Cleanup(func() { os.Unsetenv("STAGE_S3_PREFIX") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Assets.S3.Prefix != "shows/spring/" {
		t.Fatalf("prefix = %q", cfg.Assets.S3.Prefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Output.Width = 0 }},
		{"zero fade", func(c *Config) { c.Transition.FadeDuration = 0 }},
		{"unknown backend", func(c *Config) { c.Audio.Backend = "jukebox" }},
		{"threshold range", func(c *Config) { c.Compositor.MaskThreshold = 300 }},
		{"overrun below one", func(c *Config) { c.Output.OverrunFactor = 0.5 }},
		{"width ratio", func(c *Config) { c.Subtitles.MaxWidthRatio = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestSaveRoundTripsDurations(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Transition.FadeDuration = 2 * time.Second
	if err := cfg.Save(p); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Transition.FadeDuration != 2*time.Second {
		t.Fatalf("fade = %v", loaded.Transition.FadeDuration)
	}
}

func TestContext(t *testing.T) {
	cfg := Default()
	cfg.Display.Title = "rehearsal"
	ctx := WithConfig(context.Background(), cfg)
	if FromContext(ctx).Display.Title != "rehearsal" {
		t.Fatal("config not carried by context")
	}
	if FromContext(context.Background()).Display.Title != "Story Stage" {
		t.Fatal("expected defaults without config")
	}
}

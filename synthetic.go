package main

import (
	"time"

	"story-stage/pkg/assets"
	"story-stage/pkg/audio"
	"story-stage/pkg/script"
	"story-stage/pkg/stream"
)

// Test-pattern palette, one hue per configured scene or overlay.
var palette = [][3]uint8{
	{200, 60, 40}, {40, 160, 70}, {50, 90, 210}, {220, 180, 40},
	{150, 60, 190}, {40, 180, 190}, {230, 110, 30}, {120, 120, 120},
}

// syntheticOpener registers a pulsing solid-colour clip at the resolved path
// of every configured scene and a translucent one for every overlay, so a
// show can be rehearsed before the real media exists.
func syntheticOpener(lib *assets.Library, width, height int) *stream.MemoryOpener {
	m := stream.NewMemoryOpener()
	for i, id := range lib.SceneIDs() {
		path, _ := lib.ResolveBackground(id)
		m.Add(path, stream.Clip{
			Width:  width,
			Height: height,
			FPS:    30,
			Frames: 90,
			Color:  pulse(palette[i%len(palette)], 255),
		})
	}
	for i, id := range lib.OverlayIDs() {
		path, _ := lib.ResolveOverlay(id)
		m.Add(path, stream.Clip{
			Width:    width / 2,
			Height:   height / 2,
			FPS:      30,
			Frames:   60,
			HasAlpha: true,
			Color:    pulse(palette[(len(palette)-1-i)%len(palette)], 160),
		})
	}
	return m
}

// pulse brightens and dims c over each 90-frame cycle so playback is visibly
// moving.
func pulse(c [3]uint8, alpha uint8) func(int) (uint8, uint8, uint8, uint8) {
	return func(i int) (uint8, uint8, uint8, uint8) {
		phase := i % 90
		if phase > 45 {
			phase = 90 - phase
		}
		scale := 160 + phase*2 // 160..250 of 255
		return uint8(int(c[0]) * scale / 255), uint8(int(c[1]) * scale / 255), uint8(int(c[2]) * scale / 255), alpha
	}
}

// syntheticPlayer stands in two seconds of silence for every cue in the
// script and loops ambient tracks silently for every scene.
func syntheticPlayer(lib *assets.Library, s *script.Script) *audio.SilentPlayer {
	p := audio.NewSilentPlayer(2 * time.Second)
	for _, id := range lib.SceneIDs() {
		path, _ := lib.ResolveBackground(id)
		p.Add(path, 0)
	}
	if s == nil {
		return p
	}
	for _, st := range s.Steps {
		for _, c := range st.Cues {
			p.Add(c.Clip, 2*time.Second)
		}
	}
	return p
}

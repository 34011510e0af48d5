// Package display presents the engine's composited frames in an SDL2 window
// and turns the operator keyboard into control-surface calls.
package display

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"

	"story-stage/pkg/logging"
)

// ErrNoDriver is returned when every candidate video driver failed.
var ErrNoDriver = errors.New("display: no usable SDL video driver")

// driverCandidates lists video drivers in the order they are tried.
func driverCandidates(preferred, goos string) []string {
	var drivers []string
	if preferred != "" {
		drivers = append(drivers, preferred)
	}
	if goos == "darwin" {
		drivers = append(drivers, "cocoa", "software", "dummy")
	} else {
		drivers = append(drivers, "kmsdrm", "x11", "wayland", "fbcon", "software", "dummy")
	}

	seen := make(map[string]bool, len(drivers))
	out := drivers[:0]
	for _, d := range drivers {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// Init brings up the SDL video subsystem. SDL_VIDEODRIVER, when set, is tried
// first. It returns the driver in use.
func Init() (string, error) {
	log := logging.WithComponent("display")

	for _, driver := range driverCandidates(os.Getenv("SDL_VIDEODRIVER"), runtime.GOOS) {
		sdl.Quit()
		applyHints(driver)

		if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
			log.Debug().Err(err).Str("driver", driver).Msg("video driver unavailable")
			continue
		}
		name, err := sdl.GetCurrentVideoDriver()
		if err != nil {
			log.Debug().Err(err).Str("driver", driver).Msg("video driver unavailable")
			continue
		}
		log.Info().Str("driver", name).Msg("SDL video initialised")
		return name, nil
	}
	return "", ErrNoDriver
}

func applyHints(driver string) {
	sdl.SetHint(sdl.HINT_VIDEODRIVER, driver)
	switch driver {
	case "kmsdrm":
		sdl.SetHint("SDL_KMSDRM_REQUIRE_DRM_MASTER", "1")
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengles2")
	case "cocoa":
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengl")
	case "fbcon":
		sdl.SetHint("SDL_FBDEV", "/dev/fb0")
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "software")
	case "software", "dummy":
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "software")
	default:
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "")
	}
	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "1")
	sdl.SetHint(sdl.HINT_VIDEO_MINIMIZE_ON_FOCUS_LOSS, "0")
}

// Quit shuts SDL down.
func Quit() {
	sdl.Quit()
}

func displaySize() (int32, int32, error) {
	mode, err := sdl.GetCurrentDisplayMode(0)
	if err != nil {
		return 0, 0, fmt.Errorf("display mode: %w", err)
	}
	return mode.W, mode.H, nil
}

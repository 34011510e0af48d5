package display

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/veandco/go-sdl2/sdl"

	"story-stage/pkg/frame"
	"story-stage/pkg/logging"
)

// Options configures the output window.
type Options struct {
	Title      string
	Width      int32
	Height     int32
	Fullscreen bool
	HUD        bool
	HUDFont    string
}

// Window is an SDL window with a streaming texture sized to the frames it
// presents. It must be used from the thread that called Init.
type Window struct {
	log      zerolog.Logger
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32
	hud      *HUD
	showHUD  bool
}

// Open creates the window and renderer. Fullscreen windows take the desktop
// resolution; windowed mode uses Width x Height (default 1280x720).
func Open(opts Options) (*Window, error) {
	w := &Window{log: logging.WithComponent("display"), showHUD: opts.HUD}

	if opts.Title == "" {
		opts.Title = "story-stage"
	}
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = 1280, 720
	}

	var flags uint32 = sdl.WINDOW_SHOWN
	x, y := int32(sdl.WINDOWPOS_CENTERED), int32(sdl.WINDOWPOS_CENTERED)
	if opts.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN_DESKTOP
		x, y = 0, 0
		if dw, dh, err := displaySize(); err == nil {
			width, height = dw, dh
		} else {
			w.log.Warn().Err(err).Msg("using configured window size")
		}
	} else {
		flags |= sdl.WINDOW_RESIZABLE
	}

	win, err := sdl.CreateWindow(opts.Title, x, y, width, height, flags)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	w.window = win

	if err := w.createRenderer(); err != nil {
		win.Destroy()
		return nil, err
	}
	if opts.Fullscreen {
		sdl.ShowCursor(sdl.DISABLE)
	}

	hud, err := NewHUD(opts.HUDFont, 18)
	if err != nil {
		// The stage runs without a HUD rather than not at all.
		w.log.Warn().Err(err).Msg("HUD disabled")
	}
	w.hud = hud

	w.log.Info().
		Int32("width", width).
		Int32("height", height).
		Bool("fullscreen", opts.Fullscreen).
		Msg("window opened")
	return w, nil
}

// createRenderer tries an accelerated vsynced renderer and falls back to
// software.
func (w *Window) createRenderer() error {
	r, err := sdl.CreateRenderer(w.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		w.log.Warn().Err(err).Msg("accelerated renderer failed, using software")
		r, err = sdl.CreateRenderer(w.window, -1, sdl.RENDERER_SOFTWARE)
		if err != nil {
			return fmt.Errorf("create renderer: %w", err)
		}
	}
	r.SetDrawBlendMode(sdl.BLENDMODE_BLEND)
	w.renderer = r

	if info, err := r.GetInfo(); err == nil {
		w.log.Info().
			Str("renderer", info.Name).
			Bool("accelerated", info.Flags&sdl.RENDERER_ACCELERATED != 0).
			Bool("vsync", info.Flags&sdl.RENDERER_PRESENTVSYNC != 0).
			Int32("max_texture_w", info.MaxTextureWidth).
			Int32("max_texture_h", info.MaxTextureHeight).
			Msg("renderer ready")
	}
	return nil
}

// ToggleHUD flips HUD visibility.
func (w *Window) ToggleHUD() {
	w.showHUD = !w.showHUD
}

// Upload copies f into the streaming texture, recreating it when the frame
// size changes.
func (w *Window) Upload(f *frame.Frame) error {
	fw, fh := int32(f.Width), int32(f.Height)
	if w.texture == nil || fw != w.texW || fh != w.texH {
		if w.texture != nil {
			w.texture.Destroy()
			w.texture = nil
		}
		tex, err := w.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGBA32), sdl.TEXTUREACCESS_STREAMING, fw, fh)
		if err != nil {
			return fmt.Errorf("create texture: %w", err)
		}
		w.texture, w.texW, w.texH = tex, fw, fh
	}

	pixels, pitch, err := w.texture.Lock(nil)
	if err != nil {
		return fmt.Errorf("lock texture: %w", err)
	}
	defer w.texture.Unlock()

	row := f.Width * 4
	for y := 0; y < f.Height; y++ {
		copy(pixels[y*pitch:y*pitch+row], f.Pix[y*row:(y+1)*row])
	}
	return nil
}

// Draw clears to black, draws the texture letterboxed and the HUD lines when
// the HUD is shown, then presents.
func (w *Window) Draw(hudLines []string) error {
	w.renderer.SetDrawColor(0, 0, 0, 255)
	w.renderer.Clear()

	if w.texture != nil {
		ow, oh, err := w.renderer.GetOutputSize()
		if err != nil {
			return fmt.Errorf("output size: %w", err)
		}
		dst := Letterbox(w.texW, w.texH, ow, oh)
		if err := w.renderer.Copy(w.texture, nil, &dst); err != nil {
			return fmt.Errorf("copy frame: %w", err)
		}
	}

	if w.showHUD && w.hud != nil && len(hudLines) > 0 {
		if err := w.hud.Draw(w.renderer, hudLines); err != nil {
			w.log.Debug().Err(err).Msg("HUD draw failed")
		}
	}

	w.renderer.Present()
	return nil
}

// Close destroys the texture, renderer and window.
func (w *Window) Close() {
	if w.hud != nil {
		w.hud.Close()
	}
	if w.texture != nil {
		w.texture.Destroy()
	}
	if w.renderer != nil {
		w.renderer.Destroy()
	}
	if w.window != nil {
		w.window.Destroy()
	}
}

// Letterbox fits a srcW x srcH image into dstW x dstH, preserving aspect and
// centring it.
func Letterbox(srcW, srcH, dstW, dstH int32) sdl.Rect {
	if srcW <= 0 || srcH <= 0 {
		return sdl.Rect{W: dstW, H: dstH}
	}
	scale := float64(dstW) / float64(srcW)
	if s := float64(dstH) / float64(srcH); s < scale {
		scale = s
	}
	w := int32(float64(srcW) * scale)
	h := int32(float64(srcH) * scale)
	return sdl.Rect{X: (dstW - w) / 2, Y: (dstH - h) / 2, W: w, H: h}
}

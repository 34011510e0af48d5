package display

import (
	"errors"
	"fmt"
	"strings"

	"github.com/veandco/go-sdl2/sdl"
	"github.com/veandco/go-sdl2/ttf"

	"story-stage/pkg/engine"
)

// System fonts tried after the configured one.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
	"/usr/share/fonts/TTF/DejaVuSansMono.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/liberation/LiberationMono-Regular.ttf",
	"/System/Library/Fonts/Menlo.ttc",
	"/System/Library/Fonts/Helvetica.ttc",
}

var (
	hudText     = sdl.Color{R: 235, G: 235, B: 235, A: 255}
	hudWarn     = sdl.Color{R: 255, G: 170, B: 60, A: 255}
	panelTop    = [3]uint8{20, 20, 28}
	panelBottom = [3]uint8{4, 4, 8}
)

// HUD draws operator status lines in the top-left corner.
type HUD struct {
	font *ttf.Font
}

// NewHUD opens path, or the first system font that loads.
func NewHUD(path string, size int) (*HUD, error) {
	if !ttf.WasInit() {
		if err := ttf.Init(); err != nil {
			return nil, fmt.Errorf("init ttf: %w", err)
		}
	}

	paths := fontCandidates
	if path != "" {
		paths = append([]string{path}, fontCandidates...)
	}
	var errs []error
	for _, p := range paths {
		f, err := ttf.OpenFont(p, size)
		if err == nil {
			return &HUD{font: f}, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("no HUD font: %w", errors.Join(errs...))
}

// Draw renders lines over a translucent panel.
func (h *HUD) Draw(r *sdl.Renderer, lines []string) error {
	const pad = 8
	lineH := int32(h.font.Height())

	var width int32
	for _, l := range lines {
		w, _, err := h.font.SizeUTF8(l)
		if err == nil && int32(w) > width {
			width = int32(w)
		}
	}
	drawPanel(r, pad, pad, width+2*pad, lineH*int32(len(lines))+2*pad)

	y := int32(2 * pad)
	for _, l := range lines {
		color := hudText
		if strings.HasPrefix(l, "!") {
			color = hudWarn
		}
		if err := h.text(r, l, 2*pad, y, color); err != nil {
			return err
		}
		y += lineH
	}
	return nil
}

func (h *HUD) text(r *sdl.Renderer, s string, x, y int32, c sdl.Color) error {
	if s == "" {
		return nil
	}
	surface, err := h.font.RenderUTF8Blended(s, c)
	if err != nil {
		return err
	}
	defer surface.Free()

	tex, err := r.CreateTextureFromSurface(surface)
	if err != nil {
		return err
	}
	defer tex.Destroy()

	_, _, w, hgt, err := tex.Query()
	if err != nil {
		return err
	}
	return r.Copy(tex, nil, &sdl.Rect{X: x, Y: y, W: w, H: hgt})
}

// drawPanel fills a vertical gradient at 80% opacity.
func drawPanel(r *sdl.Renderer, x, y, w, h int32) {
	if h < 2 {
		return
	}
	for i := int32(0); i < h; i++ {
		t := float64(i) / float64(h-1)
		cr := uint8(float64(panelTop[0])*(1-t) + float64(panelBottom[0])*t)
		cg := uint8(float64(panelTop[1])*(1-t) + float64(panelBottom[1])*t)
		cb := uint8(float64(panelTop[2])*(1-t) + float64(panelBottom[2])*t)
		r.SetDrawColor(cr, cg, cb, 204)
		r.DrawLine(x, y+i, x+w-1, y+i)
	}
}

// Close releases the font.
func (h *HUD) Close() {
	if h.font != nil {
		h.font.Close()
	}
}

// StatusLines formats engine state for the HUD. Lines starting with "!"
// are drawn as warnings.
func StatusLines(s engine.Stats, presentFPS float64) []string {
	bg := s.Background
	if bg == "" {
		bg = "(blank)"
	}
	lines := []string{
		fmt.Sprintf("scene    %s  [%s]", bg, s.Phase),
		fmt.Sprintf("overlay  front=%s back=%s", orDash(s.Front), orDash(s.Back)),
		fmt.Sprintf("render   %.1f/%.1f ms  ticks=%d overruns=%d", s.Render.AvgTotalMs, s.Render.BudgetMs, s.Render.Ticks, s.Render.Overruns),
		fmt.Sprintf("present  %.1f fps  frame=%d", presentFPS, s.Frames),
	}

	audio := "idle"
	if s.Speaking {
		audio = "speaking"
	}
	if s.Ambient != "" {
		audio += "  ambient=" + s.Ambient
	}
	lines = append(lines, "audio    "+audio)
	if s.Subtitle != "" {
		lines = append(lines, "subtitle "+s.Subtitle)
	}

	if !s.Render.Healthy && s.Render.Ticks > 0 {
		lines = append(lines, fmt.Sprintf("! render behind budget (%.1f%% overruns)", s.Render.OverrunRate))
	}
	for _, name := range s.Render.FaultyLayers() {
		lines = append(lines, fmt.Sprintf("! %s faults=%d", name, s.Render.LayerFaults[name]))
	}
	if s.Render.Panics > 0 {
		lines = append(lines, fmt.Sprintf("! recovered panics=%d", s.Render.Panics))
	}
	return lines
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package compositor

import (
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"story-stage/pkg/frame"
)

// SubtitleStyle controls subtitle layout. Zero values pick the defaults.
type SubtitleStyle struct {
	FontPath string
	// FontSize in pixels. Zero scales with frame height.
	FontSize float64
	Outline  int
	// BottomMargin is the distance of the last baseline from the bottom edge,
	// as a fraction of frame height.
	BottomMargin  float64
	MaxWidthRatio float64
	MaxLines      int
}

func (s SubtitleStyle) withDefaults() SubtitleStyle {
	if s.Outline <= 0 {
		s.Outline = 2
	}
	if s.BottomMargin <= 0 {
		s.BottomMargin = 0.06
	}
	if s.MaxWidthRatio <= 0 || s.MaxWidthRatio > 1 {
		s.MaxWidthRatio = 0.9
	}
	if s.MaxLines <= 0 {
		s.MaxLines = 2
	}
	return s
}

var (
	subtitleFill    = color.RGBA{255, 255, 255, 255}
	subtitleOutline = color.RGBA{0, 0, 0, 255}
)

type subtitleRenderer struct {
	style SubtitleStyle
	log   zerolog.Logger
	font  *opentype.Font
	faces map[float64]font.Face
}

func newSubtitleRenderer(style SubtitleStyle, log zerolog.Logger) *subtitleRenderer {
	r := &subtitleRenderer{
		style: style.withDefaults(),
		log:   log,
		faces: make(map[float64]font.Face),
	}
	r.font = r.loadFont()
	return r
}

func (r *subtitleRenderer) loadFont() *opentype.Font {
	if path := r.style.FontPath; path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var f *opentype.Font
			if f, err = opentype.Parse(data); err == nil {
				r.log.Info().Str("font", path).Msg("subtitle font loaded")
				return f
			}
		}
		r.log.Warn().Err(err).Str("font", path).Msg("subtitle font unavailable, using built-in face")
	}
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		// The embedded font always parses.
		panic(err)
	}
	return f
}

func (r *subtitleRenderer) face(height int) font.Face {
	size := r.style.FontSize
	if size <= 0 {
		size = float64(height) / 20
		if size < 12 {
			size = 12
		}
	}
	if f, ok := r.faces[size]; ok {
		return f
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		r.log.Error().Err(err).Float64("size", size).Msg("failed to create subtitle face")
		return nil
	}
	r.faces[size] = f
	return f
}

// draw renders text centred near the bottom of f with a dark outline.
func (r *subtitleRenderer) draw(f *frame.Frame, text string) {
	face := r.face(f.Height)
	if face == nil {
		return
	}
	dc := gg.NewContextForRGBA(f.RGBA())
	dc.SetFontFace(face)

	maxWidth := float64(f.Width) * r.style.MaxWidthRatio
	lines := wrapLines(dc, text, maxWidth, r.style.MaxLines)
	if len(lines) == 0 {
		return
	}

	cx := float64(f.Width) / 2
	bottom := float64(f.Height) * (1 - r.style.BottomMargin)
	lineHeight := dc.FontHeight() * 1.3
	o := float64(r.style.Outline)

	for i, line := range lines {
		y := bottom - float64(len(lines)-1-i)*lineHeight
		dc.SetColor(subtitleOutline)
		for dy := -o; dy <= o; dy++ {
			for dx := -o; dx <= o; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				dc.DrawStringAnchored(line, cx+dx, y+dy, 0.5, 0)
			}
		}
		dc.SetColor(subtitleFill)
		dc.DrawStringAnchored(line, cx, y, 0.5, 0)
	}
}

// wrapLines word-wraps text to maxWidth and folds any overflow into the last
// allowed line, shortening it with an ellipsis until it fits.
func wrapLines(dc *gg.Context, text string, maxWidth float64, maxLines int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	lines := dc.WordWrap(text, maxWidth)
	if len(lines) <= maxLines {
		return lines
	}

	head := lines[:maxLines-1]
	last := strings.Join(lines[maxLines-1:], " ")
	words := strings.Fields(last)
	for len(words) > 1 {
		if w, _ := dc.MeasureString(strings.Join(words, " ") + "…"); w <= maxWidth {
			break
		}
		words = words[:len(words)-1]
	}
	return append(append([]string{}, head...), strings.Join(words, " ")+"…")
}

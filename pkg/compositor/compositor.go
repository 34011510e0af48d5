package compositor

import (
	"image"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"story-stage/pkg/frame"
	"story-stage/pkg/logging"
)

// DefaultMaskThreshold is the luminance (0-255) above which an overlay pixel
// without alpha is treated as opaque.
const DefaultMaskThreshold = 10

// Options configures a Compositor.
type Options struct {
	// Width and Height size the black frame used when there is no background.
	Width, Height int
	MaskThreshold uint8
	// Scaler resizes overlays to the background size. Nil means bilinear.
	Scaler   draw.Interpolator
	Subtitle SubtitleStyle
}

// Layers is everything one tick blends together. Nil overlay frames are
// skipped.
type Layers struct {
	Background *frame.Frame
	Back       *frame.Frame
	Front      *frame.Frame
	// Alpha is the transition weight of the background against black.
	Alpha    float64
	Subtitle string
}

// Compositor blends layers into output frames. It keeps font faces and
// scratch buffers between calls, so one Compositor must not be shared across
// goroutines.
type Compositor struct {
	opts     Options
	log      zerolog.Logger
	subtitle *subtitleRenderer
	scratch  *image.RGBA
}

// New creates a compositor. A subtitle font that fails to load falls back to
// the built-in face.
func New(opts Options) *Compositor {
	if opts.Width <= 0 {
		opts.Width = frame.DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = frame.DefaultHeight
	}
	if opts.Scaler == nil {
		opts.Scaler = draw.BiLinear
	}
	log := logging.WithComponent("compositor")
	return &Compositor{
		opts:     opts,
		log:      log,
		subtitle: newSubtitleRenderer(opts.Subtitle, log),
	}
}

// Compose produces one output frame. The inputs are never modified.
func (c *Compositor) Compose(in Layers) *frame.Frame {
	var out *frame.Frame
	switch {
	case in.Background == nil:
		out = frame.Black(c.opts.Width, c.opts.Height)
	case in.Background.Width != c.opts.Width || in.Background.Height != c.opts.Height:
		// The output resolution is fixed whatever the source size.
		out = c.resize(in.Background, c.opts.Width, c.opts.Height).Clone()
		out.HasAlpha = false
		opaque(out)
	default:
		out = in.Background.Clone()
		out.HasAlpha = false
		opaque(out)
	}

	alpha := clamp01(in.Alpha)
	if alpha < 1 {
		Fade(out, alpha)
	} else {
		// Overlays only show once a transition has fully completed.
		for _, ov := range []*frame.Frame{in.Back, in.Front} {
			if ov == nil {
				continue
			}
			c.overlay(out, ov)
		}
	}

	if in.Subtitle != "" {
		c.subtitle.draw(out, in.Subtitle)
	}
	return out
}

func (c *Compositor) overlay(dst, ov *frame.Frame) {
	if !ov.SameSize(dst) {
		ov = c.resize(ov, dst.Width, dst.Height)
	}
	if ov.HasAlpha {
		BlendAlpha(dst, ov)
		return
	}
	BlendMask(dst, ov, c.opts.MaskThreshold)
}

// resize scales src into a reused scratch buffer. Source pixels are straight
// alpha; the scaler writes premultiplied RGBA, which is converted back.
func (c *Compositor) resize(src *frame.Frame, w, h int) *frame.Frame {
	if c.scratch == nil || c.scratch.Rect.Dx() != w || c.scratch.Rect.Dy() != h {
		c.scratch = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	srcImg := &image.NRGBA{Pix: src.Pix, Stride: src.Width * 4, Rect: image.Rect(0, 0, src.Width, src.Height)}
	c.opts.Scaler.Scale(c.scratch, c.scratch.Rect, srcImg, srcImg.Rect, draw.Src, nil)
	if src.HasAlpha {
		unpremultiply(c.scratch.Pix)
	}
	return &frame.Frame{Width: w, Height: h, Pix: c.scratch.Pix, HasAlpha: src.HasAlpha}
}

func unpremultiply(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		a := uint32(pix[i+3])
		if a == 0 || a == 255 {
			continue
		}
		pix[i] = uint8(min(uint32(pix[i])*255/a, 255))
		pix[i+1] = uint8(min(uint32(pix[i+1])*255/a, 255))
		pix[i+2] = uint8(min(uint32(pix[i+2])*255/a, 255))
	}
}

// Fade scales every channel toward black: out = px*alpha.
func Fade(f *frame.Frame, alpha float64) {
	a := uint32(clamp01(alpha)*255 + 0.5)
	if a == 255 {
		return
	}
	pix := f.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i] = mul255(pix[i], a)
		pix[i+1] = mul255(pix[i+1], a)
		pix[i+2] = mul255(pix[i+2], a)
	}
}

// BlendAlpha draws fg over dst with straight alpha:
// out = dst*(1-a) + fg*a per channel. Both frames must be the same size.
func BlendAlpha(dst, fg *frame.Frame) {
	d, s := dst.Pix, fg.Pix
	n := min(len(d), len(s))
	for i := 0; i+3 < n; i += 4 {
		a := uint32(s[i+3])
		switch a {
		case 0:
			continue
		case 255:
			d[i], d[i+1], d[i+2] = s[i], s[i+1], s[i+2]
			continue
		}
		inv := 255 - a
		d[i] = uint8((uint32(d[i])*inv + uint32(s[i])*a + 127) / 255)
		d[i+1] = uint8((uint32(d[i+1])*inv + uint32(s[i+1])*a + 127) / 255)
		d[i+2] = uint8((uint32(d[i+2])*inv + uint32(s[i+2])*a + 127) / 255)
	}
}

// BlendMask copies fg pixels whose luminance is above threshold, treating
// near-black as transparent. Both frames must be the same size.
func BlendMask(dst, fg *frame.Frame, threshold uint8) {
	d, s := dst.Pix, fg.Pix
	n := min(len(d), len(s))
	for i := 0; i+3 < n; i += 4 {
		if frame.Luma(s[i], s[i+1], s[i+2]) > threshold {
			d[i], d[i+1], d[i+2] = s[i], s[i+1], s[i+2]
		}
	}
}

func opaque(f *frame.Frame) {
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 0xff
	}
}

func mul255(v uint8, a uint32) uint8 {
	return uint8((uint32(v)*a + 127) / 255)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

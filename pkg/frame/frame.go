package frame

import (
	"image"
)

// Standard output resolution used when no background stream is active.
const (
	DefaultWidth  = 1920
	DefaultHeight = 1080
)

// Frame is a tightly packed RGBA image (stride = Width*4).
// HasAlpha reports whether the source carried a real per-pixel alpha channel;
// decoders that produce opaque video leave it false and fill alpha with 255.
type Frame struct {
	Width    int
	Height   int
	Pix      []byte
	HasAlpha bool
}

// New allocates a zeroed frame. Alpha is left at 0, use Black for an opaque frame.
func New(width, height int) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// Black returns an opaque black frame of the given size.
func Black(width, height int) *Frame {
	f := New(width, height)
	f.Fill(0, 0, 0)
	return f
}

// FromRGBA wraps an *image.RGBA without copying when it is tightly packed
// and anchored at the origin, and copies it otherwise.
func FromRGBA(img *image.RGBA, hasAlpha bool) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if b.Min.X == 0 && b.Min.Y == 0 && img.Stride == w*4 {
		return &Frame{Width: w, Height: h, Pix: img.Pix[:w*h*4], HasAlpha: hasAlpha}
	}
	f := New(w, h)
	f.HasAlpha = hasAlpha
	for y := 0; y < h; y++ {
		src := img.Pix[(y)*img.Stride : (y)*img.Stride+w*4]
		copy(f.Pix[y*w*4:(y+1)*w*4], src)
	}
	return f
}

// RGBA exposes the frame as an *image.RGBA sharing the same pixel memory.
func (f *Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := &Frame{Width: f.Width, Height: f.Height, HasAlpha: f.HasAlpha}
	c.Pix = make([]byte, len(f.Pix))
	copy(c.Pix, f.Pix)
	return c
}

// CopyFrom overwrites f with src, reallocating when sizes differ.
func (f *Frame) CopyFrom(src *Frame) {
	if len(f.Pix) != len(src.Pix) {
		f.Pix = make([]byte, len(src.Pix))
	}
	f.Width = src.Width
	f.Height = src.Height
	f.HasAlpha = src.HasAlpha
	copy(f.Pix, src.Pix)
}

// Fill paints every pixel with an opaque colour.
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i+3 < len(f.Pix); i += 4 {
		f.Pix[i] = r
		f.Pix[i+1] = g
		f.Pix[i+2] = b
		f.Pix[i+3] = 0xff
	}
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(o *Frame) bool {
	return o != nil && f.Width == o.Width && f.Height == o.Height
}

// At returns the RGBA components of one pixel.
func (f *Frame) At(x, y int) (r, g, b, a uint8) {
	i := (y*f.Width + x) * 4
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// Luma returns the Rec.601 luminance of an RGB triple on a 0-255 scale.
func Luma(r, g, b uint8) uint8 {
	// Integer weights 77/150/29 sum to 256.
	return uint8((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

// MeanLuma returns the average luminance over the whole frame.
func (f *Frame) MeanLuma() float64 {
	n := f.Width * f.Height
	if n == 0 {
		return 0
	}
	var sum uint64
	for i := 0; i+3 < len(f.Pix); i += 4 {
		sum += uint64(Luma(f.Pix[i], f.Pix[i+1], f.Pix[i+2]))
	}
	return float64(sum) / float64(n)
}

// IsBlack reports whether every pixel's RGB is zero.
func (f *Frame) IsBlack() bool {
	for i := 0; i+3 < len(f.Pix); i += 4 {
		if f.Pix[i] != 0 || f.Pix[i+1] != 0 || f.Pix[i+2] != 0 {
			return false
		}
	}
	return true
}

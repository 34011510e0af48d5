package compositor

import (
	"testing"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"story-stage/pkg/frame"
)

func solid(w, h int, r, g, b, a uint8, hasAlpha bool) *frame.Frame {
	f := frame.New(w, h)
	f.HasAlpha = hasAlpha
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, a
	}
	return f
}

func TestComposeWithoutBackgroundIsBlack(t *testing.T) {
	c := New(Options{Width: 32, Height: 18})
	out := c.Compose(Layers{Alpha: 1})
	if out.Width != 32 || out.Height != 18 {
		t.Fatalf("size = %dx%d", out.Width, out.Height)
	}
	if !out.IsBlack() {
		t.Fatal("expected black frame")
	}
}

func TestComposeDoesNotMutateInputs(t *testing.T) {
	c := New(Options{Width: 4, Height: 4})
	bg := solid(4, 4, 200, 100, 50, 255, false)
	ov := solid(4, 4, 255, 255, 255, 255, false)
	c.Compose(Layers{Background: bg, Front: ov, Alpha: 0.5})
	c.Compose(Layers{Background: bg, Front: ov, Alpha: 1})
	if r, g, b, _ := bg.At(0, 0); r != 200 || g != 100 || b != 50 {
		t.Fatalf("background mutated: %d %d %d", r, g, b)
	}
}

func TestFadeHalvesLuminance(t *testing.T) {
	c := New(Options{Width: 8, Height: 8})
	bg := solid(8, 8, 200, 200, 200, 255, false)
	out := c.Compose(Layers{Background: bg, Alpha: 0.5})
	got := out.MeanLuma()
	want := bg.MeanLuma() / 2
	if got < want-2 || got > want+2 {
		t.Fatalf("mean luma = %v, want ~%v", got, want)
	}
}

func TestOverlaysHiddenDuringFade(t *testing.T) {
	c := New(Options{Width: 4, Height: 4})
	bg := solid(4, 4, 0, 0, 0, 255, false)
	ov := solid(4, 4, 255, 0, 0, 255, true)

	out := c.Compose(Layers{Background: bg, Front: ov, Alpha: 0.99})
	if r, _, _, _ := out.At(1, 1); r != 0 {
		t.Fatalf("overlay drawn while fading, r=%d", r)
	}
	out = c.Compose(Layers{Background: bg, Front: ov, Alpha: 1})
	if r, _, _, _ := out.At(1, 1); r != 255 {
		t.Fatalf("overlay missing at steady state, r=%d", r)
	}
}

func TestBlendAlphaStraight(t *testing.T) {
	dst := solid(1, 1, 0, 0, 200, 255, false)
	fg := solid(1, 1, 200, 0, 0, 128, true)
	BlendAlpha(dst, fg)
	r, g, b, a := dst.At(0, 0)
	// 200*128/255 ~= 100, 200*127/255 ~= 100
	if r < 99 || r > 101 || g != 0 || b < 99 || b > 101 || a != 255 {
		t.Fatalf("blend = %d %d %d %d", r, g, b, a)
	}

	transparent := solid(1, 1, 255, 255, 255, 0, true)
	BlendAlpha(dst, transparent)
	if r2, _, _, _ := dst.At(0, 0); r2 != r {
		t.Fatal("fully transparent pixel changed the destination")
	}
}

func TestBlendMaskTreatsNearBlackAsTransparent(t *testing.T) {
	dst := solid(2, 1, 50, 60, 70, 255, false)
	fg := frame.New(2, 1)
	copy(fg.Pix, []byte{
		5, 5, 5, 255, // below threshold
		240, 10, 10, 255,
	})
	BlendMask(dst, fg, DefaultMaskThreshold)

	if r, g, b, _ := dst.At(0, 0); r != 50 || g != 60 || b != 70 {
		t.Fatalf("masked pixel overwritten: %d %d %d", r, g, b)
	}
	if r, g, b, _ := dst.At(1, 0); r != 240 || g != 10 || b != 10 {
		t.Fatalf("visible pixel not copied: %d %d %d", r, g, b)
	}
}

func TestOverlayResizedToBackground(t *testing.T) {
	c := New(Options{Width: 16, Height: 9})
	bg := solid(16, 9, 0, 0, 0, 255, false)
	ov := solid(4, 4, 0, 255, 0, 255, false)
	out := c.Compose(Layers{Background: bg, Back: ov, Alpha: 1})
	if out.Width != 16 || out.Height != 9 {
		t.Fatalf("output size %dx%d", out.Width, out.Height)
	}
	for _, p := range [][2]int{{0, 0}, {15, 8}, {8, 4}} {
		if _, g, _, _ := out.At(p[0], p[1]); g != 255 {
			t.Fatalf("pixel %v not covered by resized overlay, g=%d", p, g)
		}
	}
}

func TestBackgroundScaledToOutputSize(t *testing.T) {
	c := New(Options{Width: 32, Height: 18})
	bg := solid(8, 8, 100, 150, 200, 255, false)
	out := c.Compose(Layers{Background: bg, Alpha: 1})
	if out.Width != 32 || out.Height != 18 {
		t.Fatalf("output size %dx%d, want 32x18", out.Width, out.Height)
	}
	if r, g, b, a := out.At(31, 17); r != 100 || g != 150 || b != 200 || a != 255 {
		t.Fatalf("corner pixel = %d,%d,%d,%d", r, g, b, a)
	}
	if bg.Width != 8 {
		t.Fatal("background mutated")
	}
}

func TestFrontDrawnOverBack(t *testing.T) {
	c := New(Options{Width: 2, Height: 2})
	bg := solid(2, 2, 0, 0, 0, 255, false)
	back := solid(2, 2, 0, 0, 255, 255, true)
	front := solid(2, 2, 255, 0, 0, 255, true)
	out := c.Compose(Layers{Background: bg, Back: back, Front: front, Alpha: 1})
	if r, _, b, _ := out.At(0, 0); r != 255 || b != 0 {
		t.Fatalf("front should win: r=%d b=%d", r, b)
	}
}

func TestSubtitleDrawnNearBottom(t *testing.T) {
	c := New(Options{Width: 640, Height: 360, Subtitle: SubtitleStyle{FontSize: 24}})
	bg := solid(640, 360, 90, 90, 90, 255, false)
	out := c.Compose(Layers{Background: bg, Alpha: 1, Subtitle: "Hello there"})

	changed := func(y0, y1 int) int {
		n := 0
		for y := y0; y < y1; y++ {
			for x := 0; x < out.Width; x++ {
				if r, _, _, _ := out.At(x, y); r != 90 {
					n++
				}
			}
		}
		return n
	}
	if changed(0, 180) != 0 {
		t.Fatal("subtitle leaked into the upper half")
	}
	if changed(180, 360) == 0 {
		t.Fatal("no subtitle pixels drawn")
	}
}

func TestWrapLinesLimitsToTwo(t *testing.T) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: 20, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		t.Fatal(err)
	}
	dc := gg.NewContext(10, 10)
	dc.SetFontFace(face)

	long := "the quick brown fox jumps over the lazy dog and keeps running far beyond the edge of the screen"
	lines := wrapLines(dc, long, 200, 2)
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	for _, l := range lines {
		if w, _ := dc.MeasureString(l); w > 200 {
			t.Fatalf("line %q is %v wide", l, w)
		}
	}

	if got := wrapLines(dc, "   ", 200, 2); got != nil {
		t.Fatalf("blank text wrapped to %q", got)
	}
	if got := wrapLines(dc, "short", 200, 2); len(got) != 1 {
		t.Fatalf("short text wrapped to %q", got)
	}
}

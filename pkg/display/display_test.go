package display

import (
	"strings"
	"testing"

	"github.com/veandco/go-sdl2/sdl"

	"story-stage/pkg/engine"
	"story-stage/pkg/frame"
	"story-stage/pkg/input"
	"story-stage/pkg/performance"
	"story-stage/pkg/transition"
)

func TestLetterbox(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int32
		want                   sdl.Rect
	}{
		{"same aspect", 1920, 1080, 1280, 720, sdl.Rect{X: 0, Y: 0, W: 1280, H: 720}},
		{"narrow output", 1920, 1080, 1440, 1080, sdl.Rect{X: 0, Y: 135, W: 1440, H: 810}},
		{"pillarbox 4:3 on 16:9", 1440, 1080, 1920, 1080, sdl.Rect{X: 240, Y: 0, W: 1440, H: 1080}},
		{"empty source", 0, 0, 800, 600, sdl.Rect{W: 800, H: 600}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Letterbox(tt.srcW, tt.srcH, tt.dstW, tt.dstH); got != tt.want {
				t.Errorf("Letterbox = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDriverCandidates(t *testing.T) {
	got := driverCandidates("x11", "linux")
	if got[0] != "x11" {
		t.Fatalf("preferred driver not first: %v", got)
	}
	count := 0
	for _, d := range got {
		if d == "x11" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("duplicate driver in %v", got)
	}
	if mac := driverCandidates("", "darwin"); mac[0] != "cocoa" || mac[len(mac)-1] != "dummy" {
		t.Fatalf("darwin candidates = %v", mac)
	}
}

func TestStatusLines(t *testing.T) {
	s := engine.Stats{
		Phase:    transition.FadeOut,
		Front:    "fox.mov",
		Speaking: true,
		Subtitle: "Once upon a time",
		Render: performance.Report{
			Ticks:       100,
			Overruns:    5,
			OverrunRate: 5,
			LayerFaults: map[string]uint64{"front": 2},
		},
	}
	text := strings.Join(StatusLines(s, 29.5), "\n")
	for _, want := range []string{"(blank)", "fade-out", "front=fox.mov", "back=-", "speaking", "Once upon a time", "! render behind budget", "! front faults=2"} {
		if !strings.Contains(text, want) {
			t.Errorf("status lines missing %q:\n%s", want, text)
		}
	}

	healthy := StatusLines(engine.Stats{Background: "forest", Render: performance.Report{Healthy: true, Ticks: 10}}, 30)
	for _, l := range healthy {
		if strings.HasPrefix(l, "!") {
			t.Errorf("unexpected warning %q", l)
		}
	}
}

type fakeStage struct {
	backgrounds []string
	overlays    []string
	cancels     int
}

func (f *fakeStage) SetBackground(target string) { f.backgrounds = append(f.backgrounds, target) }

func (f *fakeStage) SetOverlay(slot engine.Slot, target string) error {
	f.overlays = append(f.overlays, slot.String()+"="+target)
	return nil
}

func (f *fakeStage) CancelAllAudio()                   { f.cancels++ }
func (f *fakeStage) FrameInto(dst *frame.Frame) uint64 { return 0 }
func (f *fakeStage) Stats() engine.Stats               { return engine.Stats{} }

func TestDispatch(t *testing.T) {
	stage := &fakeStage{}
	scenes := []string{"forest", "castle"}

	dispatch(stage, scenes, input.Command{Action: input.ActionScene, Scene: 1})
	dispatch(stage, scenes, input.Command{Action: input.ActionScene, Scene: 5})
	dispatch(stage, scenes, input.Command{Action: input.ActionBlank})
	dispatch(stage, scenes, input.Command{Action: input.ActionClearOverlays})
	dispatch(stage, scenes, input.Command{Action: input.ActionCancelAudio})

	if strings.Join(stage.backgrounds, ",") != "castle," {
		t.Errorf("backgrounds = %q", stage.backgrounds)
	}
	if strings.Join(stage.overlays, ",") != "front=,back=" {
		t.Errorf("overlays = %q", stage.overlays)
	}
	if stage.cancels != 1 {
		t.Errorf("cancels = %d", stage.cancels)
	}
	if r := dispatch(stage, scenes, input.Command{Action: input.ActionToggleHUD}); r != resultToggleHUD {
		t.Errorf("toggle result = %v", r)
	}
	if r := dispatch(stage, scenes, input.Command{Action: input.ActionQuit}); r != resultQuit {
		t.Errorf("quit result = %v", r)
	}
}

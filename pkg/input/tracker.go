package input

import "github.com/veandco/go-sdl2/sdl"

// KeyPressTracker turns a polled keyboard state into press edges so a held
// key fires once.
type KeyPressTracker struct {
	pressed map[sdl.Scancode]bool
}

// NewKeyPressTracker creates a new KeyPressTracker
func NewKeyPressTracker() KeyPressTracker {
	return KeyPressTracker{
		pressed: make(map[sdl.Scancode]bool),
	}
}

// IsPressed reports whether scancode went down since the last poll.
func (kpt *KeyPressTracker) IsPressed(keyState []uint8, scancode sdl.Scancode) bool {
	down := int(scancode) < len(keyState) && keyState[scancode] != 0
	was := kpt.pressed[scancode]
	kpt.pressed[scancode] = down
	return down && !was
}

// Action is an operator command bound to a key.
type Action int

const (
	ActionScene Action = iota
	ActionBlank
	ActionClearOverlays
	ActionCancelAudio
	ActionToggleHUD
	ActionQuit
)

// String returns human-readable action name
func (a Action) String() string {
	switch a {
	case ActionScene:
		return "scene"
	case ActionBlank:
		return "blank"
	case ActionClearOverlays:
		return "clear-overlays"
	case ActionCancelAudio:
		return "cancel-audio"
	case ActionToggleHUD:
		return "toggle-hud"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is one triggered action. Scene is the 0-based scene slot for
// ActionScene.
type Command struct {
	Action Action
	Scene  int
}

var sceneKeys = []sdl.Scancode{
	sdl.SCANCODE_1, sdl.SCANCODE_2, sdl.SCANCODE_3,
	sdl.SCANCODE_4, sdl.SCANCODE_5, sdl.SCANCODE_6,
	sdl.SCANCODE_7, sdl.SCANCODE_8, sdl.SCANCODE_9,
}

var actionKeys = []struct {
	key    sdl.Scancode
	action Action
}{
	{sdl.SCANCODE_B, ActionBlank},
	{sdl.SCANCODE_O, ActionClearOverlays},
	{sdl.SCANCODE_C, ActionCancelAudio},
	{sdl.SCANCODE_H, ActionToggleHUD},
	{sdl.SCANCODE_ESCAPE, ActionQuit},
}

// Operator maps the show keyboard to commands: 1-9 scenes, B blank,
// O clear overlays, C cancel audio, H HUD, Esc quit.
type Operator struct {
	tracker KeyPressTracker
}

// NewOperator creates an operator key map.
func NewOperator() *Operator {
	return &Operator{tracker: NewKeyPressTracker()}
}

// Poll returns the commands whose keys went down since the last poll.
func (o *Operator) Poll(keyState []uint8) []Command {
	var cmds []Command
	for i, key := range sceneKeys {
		if o.tracker.IsPressed(keyState, key) {
			cmds = append(cmds, Command{Action: ActionScene, Scene: i})
		}
	}
	for _, k := range actionKeys {
		if o.tracker.IsPressed(keyState, k.key) {
			cmds = append(cmds, Command{Action: k.action})
		}
	}
	return cmds
}

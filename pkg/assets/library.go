package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownScene is returned for a target that is neither a known id nor an
// existing file.
var ErrUnknownScene = errors.New("assets: unknown scene")

// Library maps logical ids to media files under one asset directory.
type Library struct {
	dir      string
	scenes   map[string]string
	overlays map[string]string
}

// NewLibrary creates a library. Relative file names in the maps are taken
// relative to dir.
func NewLibrary(dir string, scenes, overlays map[string]string) *Library {
	l := &Library{
		dir:      dir,
		scenes:   make(map[string]string, len(scenes)),
		overlays: make(map[string]string, len(overlays)),
	}
	for id, file := range scenes {
		l.scenes[id] = file
	}
	for id, file := range overlays {
		l.overlays[id] = file
	}
	return l
}

// Dir returns the asset directory.
func (l *Library) Dir() string {
	return l.dir
}

// ResolveBackground turns a scene id or path into a file path.
// "" stays "" (blank).
func (l *Library) ResolveBackground(target string) (string, error) {
	return l.resolve(l.scenes, target)
}

// ResolveOverlay turns an overlay id or path into a file path.
// "" stays "" (empty slot).
func (l *Library) ResolveOverlay(target string) (string, error) {
	return l.resolve(l.overlays, target)
}

func (l *Library) resolve(ids map[string]string, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", nil
	}
	if file, ok := ids[target]; ok {
		return l.join(file), nil
	}
	if exists(target) {
		return target, nil
	}
	if p := l.join(target); exists(p) {
		return p, nil
	}
	return target, fmt.Errorf("%w: %s", ErrUnknownScene, target)
}

func (l *Library) join(file string) string {
	if filepath.IsAbs(file) || l.dir == "" {
		return file
	}
	return filepath.Join(l.dir, file)
}

// SceneIDs returns the configured scene ids in sorted order.
func (l *Library) SceneIDs() []string {
	return sortedKeys(l.scenes)
}

// OverlayIDs returns the configured overlay ids in sorted order.
func (l *Library) OverlayIDs() []string {
	return sortedKeys(l.overlays)
}

// Missing lists configured ids whose files are not on disk, as
// "scene:<id>" or "overlay:<id>".
func (l *Library) Missing() []string {
	var out []string
	for _, id := range l.SceneIDs() {
		if !exists(l.join(l.scenes[id])) {
			out = append(out, "scene:"+id)
		}
	}
	for _, id := range l.OverlayIDs() {
		if !exists(l.join(l.overlays[id])) {
			out = append(out, "overlay:"+id)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

package subtitle

import "testing"

func TestClearIfRespectsOwner(t *testing.T) {
	var l Line
	l.Set(1, "Hi")
	l.Set(2, "Bye")

	if l.ClearIf(1) {
		t.Fatal("stale generation must not clear a newer line")
	}
	if got := l.Text(); got != "Bye" {
		t.Fatalf("text = %q", got)
	}
	if !l.ClearIf(2) {
		t.Fatal("owner should be able to clear")
	}
	if l.ClearIf(2) {
		t.Fatal("second clear should report no change")
	}
}

func TestSetIfChecksValidity(t *testing.T) {
	var l Line
	current := uint64(5)
	valid := func(g uint64) bool { return g == current }

	if l.SetIf(4, "old", valid) {
		t.Fatal("invalid generation wrote the line")
	}
	if !l.SetIf(5, "new", valid) {
		t.Fatal("valid generation was rejected")
	}
	text, owner, changed := l.Snapshot()
	if text != "new" || owner != 5 || changed.IsZero() {
		t.Fatalf("snapshot = %q %d %v", text, owner, changed)
	}
}

func TestClearIsUnconditional(t *testing.T) {
	var l Line
	l.Set(9, "something")
	l.Clear()
	l.Clear()
	if l.Text() != "" {
		t.Fatal("line not cleared")
	}
}

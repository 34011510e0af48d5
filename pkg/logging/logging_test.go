package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logger.Info().Str("scene", "BJBJ").Msg("switch")
	if !strings.Contains(buf.String(), `"scene":"BJBJ"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(time.Second)
	t0 := time.Unix(100, 0)
	if !l.Allow("front", t0) {
		t.Fatal("first event should pass")
	}
	if l.Allow("front", t0.Add(500*time.Millisecond)) {
		t.Fatal("repeat inside window should be suppressed")
	}
	if !l.Allow("back", t0.Add(500*time.Millisecond)) {
		t.Fatal("different key should pass")
	}
	if !l.Allow("front", t0.Add(time.Second)) {
		t.Fatal("event after window should pass")
	}
}

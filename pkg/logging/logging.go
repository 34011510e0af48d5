package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. Console output is meant for the
// operator terminal next to the installation; json is for log shipping.
func Init(level string, format string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(level))

	var out io.Writer = os.Stderr
	if !strings.EqualFold(strings.TrimSpace(format), "json") {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05.000",
		}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a config string to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}
	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}
	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// Limiter suppresses repeats of the same log key inside a window. The render
// loop runs at video rate and would otherwise flood the operator terminal
// with one line per tick for a single broken layer.
type Limiter struct {
	window time.Duration
	last   map[string]time.Time
}

// NewLimiter returns a limiter allowing one event per key per window.
// It is not safe for concurrent use.
func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{window: window, last: make(map[string]time.Time)}
}

// Allow reports whether an event for key may be logged at now.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if prev, ok := l.last[key]; ok && now.Sub(prev) < l.window {
		return false
	}
	l.last[key] = now
	return true
}

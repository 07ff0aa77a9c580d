// Package logging builds the process logger and gates engine log output.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"llmhost/pkg/types"
)

// Setup returns a logger writing to stderr. format "json" emits raw JSON lines,
// anything else a human-readable console format.
func Setup(level, format string) zerolog.Logger {
	return New(os.Stderr, level, format)
}

// New is Setup with an explicit destination.
func New(w io.Writer, level, format string) zerolog.Logger {
	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps debug|info|warn|error|off onto zerolog levels. Unknown values
// mean info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	}
	return zerolog.InfoLevel
}

// Gate filters engine log lines by a minimum severity before handing them to a
// logger. The level may be changed while the engine is running.
type Gate struct {
	level atomic.Int32
	log   zerolog.Logger
}

// NewGate returns a gate forwarding lines at or above min to log.
func NewGate(log zerolog.Logger, min types.LogLevel) *Gate {
	g := &Gate{log: log.With().Str("component", "engine").Logger()}
	g.SetLevel(min)
	return g
}

// SetLevel changes the minimum severity. LogNone silences the engine.
func (g *Gate) SetLevel(l types.LogLevel) { g.level.Store(int32(l)) }

// Level returns the current minimum severity.
func (g *Gate) Level() types.LogLevel { return types.LogLevel(g.level.Load()) }

// Allows reports whether a line at l passes the gate.
func (g *Gate) Allows(l types.LogLevel) bool {
	min := g.Level()
	if l == types.LogCont || l == types.LogNone || min == types.LogNone {
		return false
	}
	return l >= min
}

// Sink is an engine.LogSink.
func (g *Gate) Sink(l types.LogLevel, msg string) {
	if !g.Allows(l) {
		return
	}
	msg = strings.TrimRight(msg, "\n")
	switch l {
	case types.LogDebug:
		g.log.Debug().Msg(msg)
	case types.LogInfo:
		g.log.Info().Msg(msg)
	case types.LogWarn:
		g.log.Warn().Msg(msg)
	default:
		g.log.Error().Msg(msg)
	}
}

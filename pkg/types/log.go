package types

import (
	"fmt"
	"strings"
)

// LogLevel is an engine log severity. Values follow the ggml numbering so hosts
// can pass levels straight through.
type LogLevel int

const (
	LogNone LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
	// LogCont marks a continuation of the previous line.
	LogCont
)

func (l LogLevel) String() string {
	switch l {
	case LogNone:
		return "none"
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	case LogCont:
		return "cont"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLogLevel accepts a level name or its numeric value.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "0":
		return LogNone, nil
	case "debug", "1":
		return LogDebug, nil
	case "info", "2", "":
		return LogInfo, nil
	case "warn", "warning", "3":
		return LogWarn, nil
	case "error", "4":
		return LogError, nil
	}
	return LogNone, fmt.Errorf("unknown log level %q", s)
}

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"llmhost/internal/engine"
	"llmhost/internal/logging"
	"llmhost/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultEngineLogLevel = types.LogWarn
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Engine performs the actual inference. Required.
	Engine engine.Engine
	// Logger receives manager and engine logs. Nil disables logging.
	Logger *zerolog.Logger
	// Registerer receives the manager's collectors. Nil uses a private registry.
	Registerer prometheus.Registerer
	// EngineLogLevel is the initial minimum severity for engine log lines.
	// Zero (LogNone) selects the package default.
	EngineLogLevel types.LogLevel
	// QuietEngine starts with engine logging silenced regardless of EngineLogLevel.
	QuietEngine bool
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	if cfg.Engine == nil {
		return nil, ErrInvalidArgument("new", "engine is required")
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	met, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	lvl := cfg.EngineLogLevel
	if lvl == types.LogNone {
		lvl = defaultEngineLogLevel
	}
	if cfg.QuietEngine {
		lvl = types.LogNone
	}
	m := &Manager{
		eng:     cfg.Engine,
		log:     log.With().Str("component", "manager").Logger(),
		gate:    logging.NewGate(log, lvl),
		metrics: met,
	}
	m.eng.SetLogSink(m.gate.Sink)
	return m, nil
}

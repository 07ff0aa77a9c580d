package manager

import (
	"sync"

	"github.com/rs/zerolog"

	"llmhost/internal/engine"
	"llmhost/internal/handles"
	"llmhost/internal/logging"
	"llmhost/pkg/types"
)

type modelRecord struct {
	model engine.Model
	path  string
	// live contexts created from this model; guarded by Manager.mu
	contexts int
}

type contextRecord struct {
	ctx   engine.Context
	model types.ModelHandle
	opts  types.ContextOptions
	// set while a generation runs; guarded by Manager.mu
	busy bool
}

// Manager is the synchronous orchestration core.
type Manager struct {
	eng     engine.Engine
	log     zerolog.Logger
	gate    *logging.Gate
	metrics *metrics

	// mu serializes structural changes: dependent-context accounting, busy
	// flags and removals. Engine calls never run under it.
	mu       sync.Mutex
	models   handles.Table[*modelRecord]
	contexts handles.Table[*contextRecord]
}

// SetLogLevel changes the minimum severity of engine log lines.
func (m *Manager) SetLogLevel(l types.LogLevel) { m.gate.SetLevel(l) }

// LogLevel returns the current engine log threshold.
func (m *Manager) LogLevel() types.LogLevel { return m.gate.Level() }

// Stats is a point-in-time count of live resources.
type Stats struct {
	Models   int
	Contexts int
}

// Stats returns the number of live models and contexts.
func (m *Manager) Stats() Stats {
	return Stats{Models: m.models.Len(), Contexts: m.contexts.Len()}
}

// ModelLive reports whether h refers to a loaded model.
func (m *Manager) ModelLive(h types.ModelHandle) bool {
	_, ok := m.models.Get(handles.Handle(h))
	return ok
}

// ContextLive reports whether h refers to an allocated context.
func (m *Manager) ContextLive(h types.ContextHandle) bool {
	_, ok := m.contexts.Get(handles.Handle(h))
	return ok
}

// Close frees every remaining context and model. Contexts with a generation in
// flight are skipped together with their models; Close returns how many
// resources it left behind.
func (m *Manager) Close() (leaked int) {
	m.mu.Lock()
	var ctxs []handles.Handle
	m.contexts.Each(func(h handles.Handle, r *contextRecord) bool {
		if r.busy {
			leaked++
		} else {
			ctxs = append(ctxs, h)
		}
		return true
	})
	var freedCtx []*contextRecord
	for _, h := range ctxs {
		if r, ok := m.contexts.Remove(h); ok {
			freedCtx = append(freedCtx, r)
			if mr, ok := m.models.Get(handles.Handle(r.model)); ok {
				mr.contexts--
			}
		}
	}
	var mods []handles.Handle
	m.models.Each(func(h handles.Handle, r *modelRecord) bool {
		if r.contexts > 0 {
			leaked++
		} else {
			mods = append(mods, h)
		}
		return true
	})
	var freedModels []*modelRecord
	for _, h := range mods {
		if r, ok := m.models.Remove(h); ok {
			freedModels = append(freedModels, r)
		}
	}
	m.mu.Unlock()

	for _, r := range freedCtx {
		m.eng.FreeContext(r.ctx)
		m.metrics.contextsLive.Dec()
	}
	for _, r := range freedModels {
		m.eng.FreeModel(r.model)
		m.metrics.modelsLoaded.Dec()
	}
	if leaked > 0 {
		m.log.Warn().Int("leaked", leaked).Msg("close left resources in use")
	}
	return leaked
}

package manager

import (
	"errors"

	"llmhost/internal/engine"
	"llmhost/internal/handles"
	"llmhost/pkg/types"
)

// ValidateContextOptions rejects negative thread counts and window sizes.
func ValidateContextOptions(opts types.ContextOptions) error {
	const op = "create_context"
	if opts.Threads < 0 {
		return ErrInvalidArgument(op, "threads must be >= 1")
	}
	if opts.ContextSize < 0 {
		return ErrInvalidArgument(op, "context size must be >= 0")
	}
	return nil
}

// CreateContext allocates a decoding context bound to model.
func (m *Manager) CreateContext(model types.ModelHandle, opts types.ContextOptions) (types.ContextHandle, error) {
	const op = "create_context"
	if err := ValidateContextOptions(opts); err != nil {
		return 0, err
	}
	opts = opts.WithDefaults()

	// Reserve a dependent slot first so the model cannot be released while the
	// engine allocates.
	m.mu.Lock()
	mr, ok := m.models.Get(handles.Handle(model))
	if ok {
		mr.contexts++
	}
	m.mu.Unlock()
	if !ok {
		return 0, ErrInvalidHandle(op, model)
	}

	ectx, err := m.eng.CreateContext(mr.model, engine.ContextParams{
		Threads:        opts.Threads,
		ContextSize:    opts.ContextSize,
		FlashAttention: opts.FlashAttentionEnabled(),
	})
	if err != nil {
		m.mu.Lock()
		mr.contexts--
		m.mu.Unlock()
		if errors.Is(err, engine.ErrNotBuilt) {
			return 0, ErrDependencyUnavailable(op, err)
		}
		return 0, newError(types.KindContextCreateFailure, op, err)
	}
	h := types.ContextHandle(m.contexts.Insert(&contextRecord{ctx: ectx, model: model, opts: opts}))
	m.metrics.contextsLive.Inc()
	m.log.Debug().
		Str("context", h.String()).
		Str("model", model.String()).
		Int("threads", opts.Threads).
		Int("context_size", opts.ContextSize).
		Bool("flash_attention", opts.FlashAttentionEnabled()).
		Msg("context created")
	return h, nil
}

// ReleaseContext frees the context. It fails while a generation is using it.
func (m *Manager) ReleaseContext(h types.ContextHandle) error {
	const op = "release_context"
	m.mu.Lock()
	r, ok, removed := m.contexts.RemoveIf(handles.Handle(h), func(r *contextRecord) bool {
		return r.busy
	})
	if removed {
		if mr, live := m.models.Get(handles.Handle(r.model)); live {
			mr.contexts--
		}
	}
	m.mu.Unlock()
	if !ok {
		return ErrInvalidHandle(op, h)
	}
	if !removed {
		return newErrorf(types.KindInvalidArgument, op, "%s has a generation in flight", h)
	}
	m.eng.FreeContext(r.ctx)
	m.metrics.contextsLive.Dec()
	m.log.Debug().Str("context", h.String()).Msg("context released")
	return nil
}

// ContextOptions returns the effective options h was created with.
func (m *Manager) ContextOptions(h types.ContextHandle) (types.ContextOptions, error) {
	r, ok := m.contexts.Get(handles.Handle(h))
	if !ok {
		return types.ContextOptions{}, ErrInvalidHandle("context_options", h)
	}
	return r.opts, nil
}

package manager

import (
	"errors"
	"strings"

	"llmhost/internal/common/fsutil"
	"llmhost/internal/engine"
	"llmhost/internal/handles"
	"llmhost/pkg/types"
)

// LoadModel loads the model file at path.
func (m *Manager) LoadModel(path string) (types.ModelHandle, error) {
	const op = "load_model"
	if strings.TrimSpace(path) == "" {
		return 0, ErrInvalidArgument(op, "model path is empty")
	}
	resolved, _, err := fsutil.ResolveFile(path)
	if err != nil {
		return 0, newError(types.KindModelLoadFailure, op, err)
	}
	mdl, err := m.eng.LoadModel(resolved)
	if err != nil {
		if errors.Is(err, engine.ErrNotBuilt) {
			return 0, ErrDependencyUnavailable(op, err)
		}
		return 0, newError(types.KindModelLoadFailure, op, err)
	}
	h := types.ModelHandle(m.models.Insert(&modelRecord{model: mdl, path: resolved}))
	m.metrics.modelsLoaded.Inc()
	m.log.Info().Str("model", h.String()).Str("path", resolved).Msg("model loaded")
	return h, nil
}

// ReleaseModel frees the model. It fails while contexts created from the model
// are still live.
func (m *Manager) ReleaseModel(h types.ModelHandle) error {
	const op = "release_model"
	var live int
	m.mu.Lock()
	r, ok, removed := m.models.RemoveIf(handles.Handle(h), func(r *modelRecord) bool {
		live = r.contexts
		return live > 0
	})
	m.mu.Unlock()
	if !ok {
		return ErrInvalidHandle(op, h)
	}
	if !removed {
		return newErrorf(types.KindInvalidArgument, op, "%s still has %d live context(s)", h, live)
	}
	m.eng.FreeModel(r.model)
	m.metrics.modelsLoaded.Dec()
	m.log.Info().Str("model", h.String()).Msg("model released")
	return nil
}

// ModelPath returns the resolved file path h was loaded from.
func (m *Manager) ModelPath(h types.ModelHandle) (string, error) {
	r, ok := m.models.Get(handles.Handle(h))
	if !ok {
		return "", ErrInvalidHandle("model_path", h)
	}
	return r.path, nil
}

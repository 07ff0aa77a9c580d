package manager

import (
	"llmhost/internal/engine"
	"llmhost/internal/handles"
	"llmhost/pkg/types"
)

// ResolveSpecialToken returns the text of the named special token. ok is false
// when the model's vocabulary does not define it. name must be one of BOS, EOS,
// PAD, EOT, SEP, CLS or NL.
func (m *Manager) ResolveSpecialToken(mh types.ModelHandle, name string) (text string, ok bool, err error) {
	const op = "resolve_special_token"
	tn, known := types.ParseTokenName(name)
	if !known {
		return "", false, ErrUnknownTokenName(name)
	}
	mr, live := m.models.Get(handles.Handle(mh))
	if !live {
		return "", false, ErrInvalidHandle(op, mh)
	}
	id := m.eng.SpecialToken(mr.model, tn)
	if id == engine.NullToken {
		return "", false, nil
	}
	text, err = m.eng.TokenText(mr.model, id)
	if err != nil {
		return "", false, newError(types.KindTokenConversionFailure, op, err)
	}
	return text, true, nil
}

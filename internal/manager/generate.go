package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"llmhost/internal/engine"
	"llmhost/internal/handles"
	"llmhost/internal/prompt"
	"llmhost/pkg/types"
)

// ValidateRequest rejects requests that can never run.
func ValidateRequest(req types.GenerateRequest) error {
	if req.MaxTokens < 0 {
		return ErrInvalidArgument("generate", "max tokens must be >= 0")
	}
	return nil
}

// Generate runs one request on the context ch of model mh and returns the
// generated text. Text may be empty when the first sampled token ends the
// generation. On failure no partial text is returned.
//
// The context stays owned by the caller on every path; only the sampler
// allocated here is freed. Cancellation of ctx is observed between decode steps.
func (m *Manager) Generate(ctx context.Context, mh types.ModelHandle, ch types.ContextHandle, req types.GenerateRequest) (string, error) {
	const op = "generate"
	if err := ValidateRequest(req); err != nil {
		return "", err
	}
	req = req.WithDefaults()

	mr, cr, err := m.acquire(op, mh, ch)
	if err != nil {
		return "", err
	}
	defer m.releaseBusy(cr)

	start := time.Now()
	res, err := m.run(ctx, mr, cr, req)
	m.metrics.generationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.generationsTotal.WithLabelValues(outcomeError).Inc()
		m.log.Debug().Err(err).Str("context", ch.String()).Msg("generation failed")
		return "", err
	}
	m.metrics.generationsTotal.WithLabelValues(res.outcome).Inc()
	m.metrics.generatedTokens.Add(float64(res.generated))
	m.log.Debug().
		Str("context", ch.String()).
		Int("prompt_tokens", res.promptTokens).
		Int("generated_tokens", res.generated).
		Str("finish_reason", res.outcome).
		Dur("took", time.Since(start)).
		Msg("generation finished")
	return res.text, nil
}

// acquire resolves both handles and marks the context busy.
func (m *Manager) acquire(op string, mh types.ModelHandle, ch types.ContextHandle) (*modelRecord, *contextRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.models.Get(handles.Handle(mh))
	if !ok {
		return nil, nil, ErrInvalidHandle(op, mh)
	}
	cr, ok := m.contexts.Get(handles.Handle(ch))
	if !ok {
		return nil, nil, ErrInvalidHandle(op, ch)
	}
	if cr.model != mh {
		return nil, nil, newErrorf(types.KindInvalidArgument, op, "%s belongs to %s, not %s", ch, cr.model, mh)
	}
	if cr.busy {
		return nil, nil, newErrorf(types.KindInvalidArgument, op, "%s already has a generation in flight", ch)
	}
	cr.busy = true
	return mr, cr, nil
}

func (m *Manager) releaseBusy(cr *contextRecord) {
	m.mu.Lock()
	cr.busy = false
	m.mu.Unlock()
}

type runResult struct {
	text         string
	promptTokens int
	generated    int
	outcome      string
}

func (m *Manager) run(ctx context.Context, mr *modelRecord, cr *contextRecord, req types.GenerateRequest) (runResult, error) {
	const op = "generate"
	eng := m.eng

	text := prompt.Build(req.SystemPrompt, req.Prompt)
	tokens, err := m.tokenize(mr.model, text)
	if err != nil {
		return runResult{}, err
	}

	// Each request starts from an empty KV cache.
	if err := eng.ClearMemory(cr.ctx); err != nil {
		if errors.Is(err, engine.ErrNotBuilt) {
			return runResult{}, ErrDependencyUnavailable(op, err)
		}
		return runResult{}, newError(types.KindDecodeFailure, op, fmt.Errorf("clear memory: %w", err))
	}

	smpl, err := eng.NewSampler(mr.model, engine.SamplerFor(req.EffectiveSeed()))
	if err != nil {
		if errors.Is(err, engine.ErrNotBuilt) {
			return runResult{}, ErrDependencyUnavailable(op, err)
		}
		return runResult{}, newError(types.KindDecodeFailure, op, fmt.Errorf("sampler: %w", err))
	}
	defer eng.FreeSampler(smpl)

	var (
		out       strings.Builder
		generated int
		batch     = tokens
		outcome   = outcomeLength
	)
	// The last sampled token is never decoded, so decoded positions stay
	// below len(tokens)+MaxTokens.
	for {
		if err := ctx.Err(); err != nil {
			return runResult{}, err
		}
		if err := eng.Decode(cr.ctx, batch); err != nil {
			return runResult{}, newError(types.KindDecodeFailure, op, err)
		}

		tok := eng.Sample(smpl, cr.ctx)
		if eng.IsEndOfGeneration(mr.model, tok) {
			outcome = outcomeStop
			break
		}
		piece, err := eng.TokenToPiece(mr.model, tok)
		if err != nil {
			return runResult{}, newError(types.KindTokenConversionFailure, op, err)
		}
		out.Write(piece)
		generated++
		if req.OnToken != nil {
			if err := req.OnToken(string(piece)); err != nil {
				return runResult{}, fmt.Errorf("%s: token callback: %w", op, err)
			}
		}
		if generated >= req.MaxTokens {
			break
		}
		batch = []engine.Token{tok}
	}
	return runResult{text: out.String(), promptTokens: len(tokens), generated: generated, outcome: outcome}, nil
}

// tokenize uses the two-pass sizing protocol: learn the count, then fill a
// buffer of exactly that size.
func (m *Manager) tokenize(mdl engine.Model, text string) ([]engine.Token, error) {
	const op = "tokenize"
	n, err := m.eng.Tokenize(mdl, text, nil)
	if err != nil {
		return nil, newError(types.KindTokenizeFailure, op, err)
	}
	if n <= 0 {
		return nil, newErrorf(types.KindTokenizeFailure, op, "sizing pass returned %d tokens", n)
	}
	buf := make([]engine.Token, n)
	got, err := m.eng.Tokenize(mdl, text, buf)
	if err != nil {
		return nil, newError(types.KindTokenizeFailure, op, err)
	}
	if got != n {
		return nil, newErrorf(types.KindTokenizeFailure, op, "expected %d tokens, got %d", n, got)
	}
	return buf, nil
}

// Package engine defines the primitives the orchestration layer needs from an
// inference engine: model and context lifetime, tokenization, batch decoding,
// sampling and vocabulary lookups.
//
// The real backend binds llama.cpp through yzma and is compiled with
// `-tags=yzma`. Without the tag New returns a stub whose LoadModel fails with
// ErrNotBuilt, keeping default builds free of native libraries.
package engine

import (
	"errors"

	"llmhost/pkg/types"
)

// Token is a vocabulary token id.
type Token int32

// NullToken marks a token id the vocabulary does not define.
const NullToken Token = -1

// Opaque engine resources. Each backend asserts them back to its own types.
type (
	Model   any
	Context any
	Sampler any
)

// ErrNotBuilt is returned when no engine backend was compiled in.
var ErrNotBuilt = errors.New("inference engine not built (missing 'yzma' build tag)")

// ContextParams configures a decoding context.
type ContextParams struct {
	Threads        int
	ContextSize    int // 0 selects the model's trained window
	FlashAttention bool
}

// LogSink receives engine log lines.
type LogSink func(level types.LogLevel, msg string)

// Engine is the collaborator surface driven by the generation loop.
type Engine interface {
	LoadModel(path string) (Model, error)
	FreeModel(m Model)

	CreateContext(m Model, p ContextParams) (Context, error)
	FreeContext(c Context)
	// ClearMemory drops all decoded positions from c.
	ClearMemory(c Context) error

	// Tokenize converts text into tokens. With a nil dst it only reports the
	// number of tokens required; otherwise dst must be exactly that long.
	Tokenize(m Model, text string, dst []Token) (int, error)
	// Decode evaluates batch at the positions following those already decoded.
	Decode(c Context, batch []Token) error

	NewSampler(m Model, cfg SamplerConfig) (Sampler, error)
	// Sample picks the next token from the distribution at the last decoded position.
	Sample(s Sampler, c Context) Token
	FreeSampler(s Sampler)

	IsEndOfGeneration(m Model, t Token) bool
	TokenToPiece(m Model, t Token) ([]byte, error)
	SpecialToken(m Model, name types.TokenName) Token
	TokenText(m Model, t Token) (string, error)

	SetLogSink(sink LogSink)
}

// Options configures New.
type Options struct {
	// LibPath is the directory holding the llama.cpp shared libraries.
	LibPath string
}

// Package enginetest provides a deterministic in-memory engine.Engine.
//
// The fake vocabulary maps every byte b to token b+ByteBase and reserves a few
// low ids for special tokens. Greedy sampling replays Reply one byte at a time
// and then emits EOS; seeded sampling draws lowercase letters (and EOS with
// probability 1/16) from a PCG stream seeded with the request seed. Both are
// reproducible for a fixed prompt and seed.
package enginetest

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"llmhost/internal/engine"
	"llmhost/pkg/types"
)

const (
	TokenBOS engine.Token = 1
	TokenEOS engine.Token = 2
	TokenEOT engine.Token = 3
	// ByteBase is the id of byte 0.
	ByteBase engine.Token = 10
)

// Injected faults.
var (
	ErrLoad     = errors.New("enginetest: load failed")
	ErrContext  = errors.New("enginetest: context allocation failed")
	ErrTokenize = errors.New("enginetest: tokenize failed")
	ErrDecode   = errors.New("enginetest: decode failed")
	ErrPiece    = errors.New("enginetest: piece conversion failed")
	ErrClear    = errors.New("enginetest: memory clear failed")
)

// Engine is a scriptable fake. Configure the exported fields before use; they
// are read under the engine lock.
type Engine struct {
	mu sync.Mutex

	// Reply is what greedy sampling produces before EOS.
	Reply string
	// LoadErr fails every LoadModel call.
	LoadErr error
	// ContextErr fails every CreateContext call.
	ContextErr error
	// TokenizeSizingErr fails the sizing pass; TokenizeFillErr the second pass.
	TokenizeSizingErr bool
	TokenizeFillErr   bool
	// DecodeFailAt fails the n-th Decode call of a request (1-based); 0 disables.
	DecodeFailAt int
	// ClearFail fails every ClearMemory call and leaves the history intact.
	ClearFail bool
	// PieceFailAt fails the n-th TokenToPiece call of a request (1-based); 0 disables.
	PieceFailAt int
	// Special overrides the default special tokens. NullToken marks a name undefined.
	Special map[types.TokenName]engine.Token

	sink         engine.LogSink
	piecesCalled int

	// Counters.
	LoadedModels   int
	FreedModels    int
	CreatedCtx     int
	FreedCtx       int
	OpenSamplers   int
	SamplersMade   int
	DecodeCalls    int
	TokenizeCalls  int
	LastPrompt     string
	LastSampler    engine.SamplerConfig
	LastCtxParams  engine.ContextParams
	LastBatchSizes []int
}

// New returns a fake engine whose greedy reply is reply.
func New(reply string) *Engine { return &Engine{Reply: reply} }

type fakeModel struct {
	path  string
	freed bool
}

type fakeContext struct {
	model   *fakeModel
	history []engine.Token
	decodes int
	freed   bool
}

type fakeSampler struct {
	cfg   engine.SamplerConfig
	rng   *rand.Rand
	drawn int
	reply string
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) SetLogSink(sink engine.LogSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

func (e *Engine) logf(level types.LogLevel, format string, args ...any) {
	if e.sink != nil {
		e.sink(level, fmt.Sprintf(format, args...))
	}
}

func (e *Engine) LoadModel(path string) (engine.Model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	e.LoadedModels++
	e.logf(types.LogInfo, "loaded model %s", path)
	e.logf(types.LogCont, ".")
	e.logf(types.LogDebug, "vocab size %d", 256+int(ByteBase))
	return &fakeModel{path: path}, nil
}

func (e *Engine) FreeModel(m engine.Model) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fm := m.(*fakeModel)
	if fm.freed {
		panic("enginetest: model freed twice")
	}
	fm.freed = true
	e.FreedModels++
}

func (e *Engine) CreateContext(m engine.Model, p engine.ContextParams) (engine.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ContextErr != nil {
		return nil, e.ContextErr
	}
	fm := m.(*fakeModel)
	if fm.freed {
		panic("enginetest: context created on freed model")
	}
	e.CreatedCtx++
	e.LastCtxParams = p
	return &fakeContext{model: fm}, nil
}

func (e *Engine) FreeContext(c engine.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fc := c.(*fakeContext)
	if fc.freed {
		panic("enginetest: context freed twice")
	}
	fc.freed = true
	e.FreedCtx++
}

func (e *Engine) ClearMemory(c engine.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClearFail {
		return ErrClear
	}
	fc := c.(*fakeContext)
	fc.history = fc.history[:0]
	fc.decodes = 0
	e.piecesCalled = 0
	return nil
}

func (e *Engine) Tokenize(_ engine.Model, text string, dst []engine.Token) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TokenizeCalls++
	n := len(text) + 1 // BOS
	if dst == nil {
		if e.TokenizeSizingErr {
			return -1, ErrTokenize
		}
		e.LastPrompt = text
		return n, nil
	}
	if e.TokenizeFillErr {
		return -1, ErrTokenize
	}
	if len(dst) != n {
		return -1, fmt.Errorf("enginetest: buffer %d, need %d", len(dst), n)
	}
	dst[0] = TokenBOS
	for i := 0; i < len(text); i++ {
		dst[i+1] = ByteBase + engine.Token(text[i])
	}
	return n, nil
}

func (e *Engine) Decode(c engine.Context, batch []engine.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fc := c.(*fakeContext)
	if fc.freed || fc.model.freed {
		panic("enginetest: decode on freed resource")
	}
	e.DecodeCalls++
	fc.decodes++
	e.LastBatchSizes = append(e.LastBatchSizes, len(batch))
	if e.DecodeFailAt > 0 && fc.decodes == e.DecodeFailAt {
		return ErrDecode
	}
	fc.history = append(fc.history, batch...)
	return nil
}

func (e *Engine) NewSampler(_ engine.Model, cfg engine.SamplerConfig) (engine.Sampler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenSamplers++
	e.SamplersMade++
	e.LastSampler = cfg
	s := &fakeSampler{cfg: cfg, reply: e.Reply}
	if cfg.Kind == engine.SamplerSeededRandom {
		s.rng = rand.New(rand.NewPCG(uint64(cfg.Seed), 0x5eed))
	}
	return s, nil
}

func (e *Engine) Sample(s engine.Sampler, _ engine.Context) engine.Token {
	fs := s.(*fakeSampler)
	defer func() { fs.drawn++ }()
	if fs.cfg.Kind == engine.SamplerGreedy {
		if fs.drawn < len(fs.reply) {
			return ByteBase + engine.Token(fs.reply[fs.drawn])
		}
		return TokenEOS
	}
	if fs.rng.IntN(16) == 0 {
		return TokenEOS
	}
	return ByteBase + engine.Token('a'+fs.rng.IntN(26))
}

func (e *Engine) FreeSampler(engine.Sampler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OpenSamplers--
}

func (e *Engine) IsEndOfGeneration(_ engine.Model, t engine.Token) bool {
	return t == TokenEOS || t == TokenEOT
}

func (e *Engine) TokenToPiece(_ engine.Model, t engine.Token) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// counted per engine since the last ClearMemory
	e.piecesCalled++
	if e.PieceFailAt > 0 && e.piecesCalled == e.PieceFailAt {
		return nil, ErrPiece
	}
	if t < ByteBase || t >= ByteBase+256 {
		return nil, fmt.Errorf("enginetest: token %d has no piece", t)
	}
	return []byte{byte(t - ByteBase)}, nil
}

func (e *Engine) SpecialToken(_ engine.Model, name types.TokenName) engine.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.Special[name]; ok {
		return t
	}
	switch name {
	case types.TokenBOS:
		return TokenBOS
	case types.TokenEOS:
		return TokenEOS
	case types.TokenEOT:
		return TokenEOT
	case types.TokenNL:
		return ByteBase + '\n'
	}
	return engine.NullToken
}

func (e *Engine) TokenText(_ engine.Model, t engine.Token) (string, error) {
	switch t {
	case TokenBOS:
		return "<s>", nil
	case TokenEOS:
		return "</s>", nil
	case TokenEOT:
		return "<|eot|>", nil
	}
	if t >= ByteBase && t < ByteBase+256 {
		return string([]byte{byte(t - ByteBase)}), nil
	}
	return "", fmt.Errorf("enginetest: unknown token %d", t)
}

// Stats is a consistent snapshot of the counters.
type Stats struct {
	LoadedModels, FreedModels int
	CreatedCtx, FreedCtx      int
	OpenSamplers              int
	SamplersMade              int
	DecodeCalls               int
	TokenizeCalls             int
}

// Snapshot returns the counters under the lock.
func (e *Engine) Snapshot() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		LoadedModels:  e.LoadedModels,
		FreedModels:   e.FreedModels,
		CreatedCtx:    e.CreatedCtx,
		FreedCtx:      e.FreedCtx,
		OpenSamplers:  e.OpenSamplers,
		SamplersMade:  e.SamplersMade,
		DecodeCalls:   e.DecodeCalls,
		TokenizeCalls: e.TokenizeCalls,
	}
}

// Prompt returns the text of the last sizing tokenize pass.
func (e *Engine) Prompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.LastPrompt
}

// Configure runs fn under the engine lock so tests can change faults safely
// while workers are running.
func (e *Engine) Configure(fn func(e *Engine)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e)
}

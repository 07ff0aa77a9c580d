//go:build yzma

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/hybridgroup/yzma/pkg/llama"
	"github.com/hybridgroup/yzma/pkg/utils"

	"llmhost/pkg/types"
)

// Built reports whether a real engine backend was compiled in.
const Built = true

var (
	initOnce sync.Once
	initErr  error
)

// New loads the llama.cpp shared libraries (once per process) and returns a
// yzma-backed engine.
func New(opts Options) (Engine, error) {
	initOnce.Do(func() {
		lib := opts.LibPath
		if lib == "" {
			lib = os.Getenv("YZMA_LIB")
		}
		if lib == "" {
			lib = "./lib"
		}
		if abs, err := filepath.Abs(lib); err == nil {
			lib = abs
		}
		if err := llama.Load(lib); err != nil {
			initErr = fmt.Errorf("load llama.cpp from %s: %w", lib, err)
			return
		}
		llama.Init()
		llama.LogSet(purego.NewCallback(func(level int32, text, _ uintptr) uintptr {
			native.emit(level, utils.BytePtrToString((*byte)(unsafe.Pointer(text))))
			return 0
		}))
	})
	if initErr != nil {
		return nil, initErr
	}
	return &yzmaEngine{}, nil
}

type yzmaEngine struct {
	mu   sync.RWMutex
	sink LogSink
}

type yzmaModel struct {
	model llama.Model
	vocab llama.Vocab
}

type yzmaContext struct {
	ctx llama.Context
}

type yzmaSampler struct {
	chain llama.Sampler
}

// log forwards adapter-level events. Native llama.cpp lines reach the same
// sink through the process-wide relay installed by New.
func (e *yzmaEngine) log(level types.LogLevel, format string, args ...any) {
	e.mu.RLock()
	sink := e.sink
	e.mu.RUnlock()
	if sink != nil {
		sink(level, fmt.Sprintf(format, args...))
	}
}

func (e *yzmaEngine) SetLogSink(sink LogSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
	native.set(sink)
}

func (e *yzmaEngine) LoadModel(path string) (Model, error) {
	m, err := llama.ModelLoadFromFile(path, llama.ModelDefaultParams())
	if err != nil {
		return nil, err
	}
	e.log(types.LogInfo, "loaded model %s", path)
	return &yzmaModel{model: m, vocab: llama.ModelGetVocab(m)}, nil
}

func (e *yzmaEngine) FreeModel(m Model) {
	if ym, ok := m.(*yzmaModel); ok {
		llama.ModelFree(ym.model)
	}
}

func (e *yzmaEngine) CreateContext(m Model, p ContextParams) (Context, error) {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return nil, errors.New("foreign model")
	}
	params := llama.ContextDefaultParams()
	params.NCtx = uint32(p.ContextSize)
	params.NThreads = int32(p.Threads)
	params.NThreadsBatch = int32(p.Threads)
	if p.FlashAttention {
		params.FlashAttentionType = llama.FlashAttentionTypeEnabled
	} else {
		params.FlashAttentionType = llama.FlashAttentionTypeDisabled
	}
	lctx, err := llama.InitFromModel(ym.model, params)
	if err != nil {
		return nil, err
	}
	e.log(types.LogDebug, "context created (threads=%d n_ctx=%d)", p.Threads, p.ContextSize)
	return &yzmaContext{ctx: lctx}, nil
}

func (e *yzmaEngine) FreeContext(c Context) {
	if yc, ok := c.(*yzmaContext); ok {
		llama.Free(yc.ctx)
	}
}

func (e *yzmaEngine) ClearMemory(c Context) error {
	yc, ok := c.(*yzmaContext)
	if !ok {
		return errors.New("foreign context")
	}
	mem, err := llama.GetMemory(yc.ctx)
	if err != nil {
		return fmt.Errorf("get memory: %w", err)
	}
	if err := llama.MemoryClear(mem, true); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

func (e *yzmaEngine) Tokenize(m Model, text string, dst []Token) (int, error) {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return -1, errors.New("foreign model")
	}
	toks := llama.Tokenize(ym.vocab, text, true, true)
	if dst == nil {
		return len(toks), nil
	}
	if len(dst) != len(toks) {
		return -1, fmt.Errorf("token buffer holds %d, need %d", len(dst), len(toks))
	}
	for i, t := range toks {
		dst[i] = Token(t)
	}
	return len(toks), nil
}

func (e *yzmaEngine) Decode(c Context, batch []Token) error {
	yc, ok := c.(*yzmaContext)
	if !ok {
		return errors.New("foreign context")
	}
	toks := make([]llama.Token, len(batch))
	for i, t := range batch {
		toks[i] = llama.Token(t)
	}
	// BatchGetOne does not own memory; no BatchFree.
	if _, err := llama.Decode(yc.ctx, llama.BatchGetOne(toks)); err != nil {
		return err
	}
	return nil
}

func (e *yzmaEngine) NewSampler(_ Model, cfg SamplerConfig) (Sampler, error) {
	chain := llama.SamplerChainInit(llama.SamplerChainDefaultParams())
	switch cfg.Kind {
	case SamplerGreedy:
		llama.SamplerChainAdd(chain, llama.SamplerInitGreedy())
	case SamplerSeededRandom:
		llama.SamplerChainAdd(chain, llama.SamplerInitDist(cfg.Seed))
	default:
		llama.SamplerFree(chain)
		return nil, fmt.Errorf("unsupported sampler %s", cfg)
	}
	return &yzmaSampler{chain: chain}, nil
}

func (e *yzmaEngine) Sample(s Sampler, c Context) Token {
	ys, ok1 := s.(*yzmaSampler)
	yc, ok2 := c.(*yzmaContext)
	if !ok1 || !ok2 {
		return NullToken
	}
	return Token(llama.SamplerSample(ys.chain, yc.ctx, -1))
}

func (e *yzmaEngine) FreeSampler(s Sampler) {
	if ys, ok := s.(*yzmaSampler); ok {
		llama.SamplerFree(ys.chain)
	}
}

func (e *yzmaEngine) IsEndOfGeneration(m Model, t Token) bool {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return true
	}
	return llama.VocabIsEOG(ym.vocab, llama.Token(t))
}

func (e *yzmaEngine) TokenToPiece(m Model, t Token) ([]byte, error) {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return nil, errors.New("foreign model")
	}
	buf := make([]byte, 64)
	n := llama.TokenToPiece(ym.vocab, llama.Token(t), buf, 0, true)
	if n < 0 {
		// negative result is the required size
		buf = make([]byte, -n)
		n = llama.TokenToPiece(ym.vocab, llama.Token(t), buf, 0, true)
	}
	if n < 0 || int(n) > len(buf) {
		return nil, fmt.Errorf("token %d: piece conversion returned %d", t, n)
	}
	return buf[:n], nil
}

func (e *yzmaEngine) SpecialToken(m Model, name types.TokenName) Token {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return NullToken
	}
	var id llama.Token
	switch name {
	case types.TokenBOS, types.TokenCLS: // llama.cpp aliases CLS to BOS
		id = llama.VocabBOS(ym.vocab)
	case types.TokenEOS:
		id = llama.VocabEOS(ym.vocab)
	case types.TokenPAD:
		id = llama.VocabPAD(ym.vocab)
	case types.TokenEOT:
		id = llama.VocabEOT(ym.vocab)
	case types.TokenSEP:
		id = llama.VocabSEP(ym.vocab)
	case types.TokenNL:
		id = llama.VocabNL(ym.vocab)
	default:
		return NullToken
	}
	if id < 0 {
		return NullToken
	}
	return Token(id)
}

func (e *yzmaEngine) TokenText(m Model, t Token) (string, error) {
	ym, ok := m.(*yzmaModel)
	if !ok {
		return "", errors.New("foreign model")
	}
	return llama.VocabGetText(ym.vocab, llama.Token(t)), nil
}

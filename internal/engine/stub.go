//go:build !yzma

package engine

import "llmhost/pkg/types"

// Built reports whether a real engine backend was compiled in.
const Built = false

// New returns a stub engine that refuses to load models.
func New(Options) (Engine, error) { return stubEngine{}, nil }

type stubEngine struct{}

func (stubEngine) LoadModel(string) (Model, error) { return nil, ErrNotBuilt }
func (stubEngine) FreeModel(Model)                 {}
func (stubEngine) CreateContext(Model, ContextParams) (Context, error) {
	return nil, ErrNotBuilt
}
func (stubEngine) FreeContext(Context)                          {}
func (stubEngine) ClearMemory(Context) error                    { return ErrNotBuilt }
func (stubEngine) Tokenize(Model, string, []Token) (int, error) { return -1, ErrNotBuilt }
func (stubEngine) Decode(Context, []Token) error                { return ErrNotBuilt }
func (stubEngine) NewSampler(Model, SamplerConfig) (Sampler, error) {
	return nil, ErrNotBuilt
}
func (stubEngine) Sample(Sampler, Context) Token             { return NullToken }
func (stubEngine) FreeSampler(Sampler)                       {}
func (stubEngine) IsEndOfGeneration(Model, Token) bool       { return true }
func (stubEngine) TokenToPiece(Model, Token) ([]byte, error) { return nil, ErrNotBuilt }
func (stubEngine) SpecialToken(Model, types.TokenName) Token { return NullToken }
func (stubEngine) TokenText(Model, Token) (string, error)    { return "", ErrNotBuilt }
func (stubEngine) SetLogSink(LogSink)                        {}

package types

// DefaultSeed requests deterministic (greedy) decoding. Any other seed selects
// seeded random sampling.
const DefaultSeed uint32 = 0xFFFFFFFF

// DefaultMaxTokens bounds generation when a request leaves MaxTokens unset.
const DefaultMaxTokens = 1024

// Seed returns a pointer to v, for use in GenerateRequest.Seed.
func Seed(v uint32) *uint32 { return &v }

// Bool returns a pointer to v, for use in ContextOptions.FlashAttention.
func Bool(v bool) *bool { return &v }

// ContextOptions configures a decoding context.
type ContextOptions struct {
	// Threads used for decoding. Zero means 1.
	Threads int `json:"threads,omitempty" yaml:"threads,omitempty"`
	// ContextSize is the window in tokens. Zero selects the model's trained window.
	ContextSize int `json:"context_size,omitempty" yaml:"context_size,omitempty"`
	// FlashAttention toggles flash attention. Nil means enabled.
	FlashAttention *bool `json:"flash_attention,omitempty" yaml:"flash_attention,omitempty"`
}

// WithDefaults returns a copy of o with unset fields filled in.
func (o ContextOptions) WithDefaults() ContextOptions {
	if o.Threads == 0 {
		o.Threads = 1
	}
	if o.FlashAttention == nil {
		o.FlashAttention = Bool(true)
	}
	return o
}

// FlashAttentionEnabled reports the effective flash attention setting.
func (o ContextOptions) FlashAttentionEnabled() bool {
	return o.FlashAttention == nil || *o.FlashAttention
}

// GenerateRequest carries the parameters of one generation call.
type GenerateRequest struct {
	// Prompt is the user prompt. A leading "!#" marks it as a complete raw prompt.
	Prompt string `json:"prompt"`
	// SystemPrompt fills the system segment of the chat template.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// MaxTokens bounds newly generated tokens. Zero means DefaultMaxTokens.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Seed selects the sampler. Nil or DefaultSeed means greedy decoding.
	Seed *uint32 `json:"seed,omitempty"`
	// OnToken, when set, receives each text fragment as it is produced.
	// Returning an error aborts the request.
	OnToken func(fragment string) error `json:"-"`
}

// WithDefaults returns a copy of r with unset fields filled in.
func (r GenerateRequest) WithDefaults() GenerateRequest {
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.Seed == nil {
		r.Seed = Seed(DefaultSeed)
	}
	return r
}

// EffectiveSeed returns the seed the request samples with.
func (r GenerateRequest) EffectiveSeed() uint32 {
	if r.Seed == nil {
		return DefaultSeed
	}
	return *r.Seed
}

// InferenceOptions drives a one-shot load, generate, release cycle.
type InferenceOptions struct {
	ModelPath    string                      `json:"model_path"`
	Prompt       string                      `json:"prompt"`
	SystemPrompt string                      `json:"system_prompt,omitempty"`
	Context      ContextOptions              `json:"context,omitempty"`
	MaxTokens    int                         `json:"max_tokens,omitempty"`
	Seed         *uint32                     `json:"seed,omitempty"`
	OnToken      func(fragment string) error `json:"-"`
}

// Request projects the generation part of o.
func (o InferenceOptions) Request() GenerateRequest {
	return GenerateRequest{
		Prompt:       o.Prompt,
		SystemPrompt: o.SystemPrompt,
		MaxTokens:    o.MaxTokens,
		Seed:         o.Seed,
		OnToken:      o.OnToken,
	}
}

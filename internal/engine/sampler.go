package engine

import (
	"fmt"

	"llmhost/pkg/types"
)

// SamplerKind selects between the two supported sampling strategies.
type SamplerKind int

const (
	SamplerGreedy SamplerKind = iota
	SamplerSeededRandom
)

func (k SamplerKind) String() string {
	switch k {
	case SamplerGreedy:
		return "greedy"
	case SamplerSeededRandom:
		return "seeded"
	}
	return fmt.Sprintf("sampler(%d)", int(k))
}

// SamplerConfig is a tagged union: Seed is meaningful only for SamplerSeededRandom.
type SamplerConfig struct {
	Kind SamplerKind
	Seed uint32
}

// Greedy always picks the most likely token.
func Greedy() SamplerConfig { return SamplerConfig{Kind: SamplerGreedy} }

// SeededRandom samples from the distribution with a fixed seed.
func SeededRandom(seed uint32) SamplerConfig {
	return SamplerConfig{Kind: SamplerSeededRandom, Seed: seed}
}

// SamplerFor maps a request seed onto a sampler: types.DefaultSeed is greedy.
func SamplerFor(seed uint32) SamplerConfig {
	if seed == types.DefaultSeed {
		return Greedy()
	}
	return SeededRandom(seed)
}

func (c SamplerConfig) String() string {
	if c.Kind == SamplerSeededRandom {
		return fmt.Sprintf("seeded(%d)", c.Seed)
	}
	return c.Kind.String()
}

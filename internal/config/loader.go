package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/invopop/validation"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llmhost/pkg/types"
)

// Config holds CLI and runtime parameters.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	ModelsDir      string  `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Model          string  `json:"model" yaml:"model" toml:"model"`
	SystemPrompt   string  `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt"`
	Threads        int     `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize    int     `json:"context_size" yaml:"context_size" toml:"context_size"`
	FlashAttention *bool   `json:"flash_attention" yaml:"flash_attention" toml:"flash_attention"`
	MaxTokens      int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Seed           *uint32 `json:"seed" yaml:"seed" toml:"seed"`
	Workers        int     `json:"workers" yaml:"workers" toml:"workers"`
	QueueDepth     int     `json:"queue_depth" yaml:"queue_depth" toml:"queue_depth"`
	LogLevel       string  `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat      string  `json:"log_format" yaml:"log_format" toml:"log_format"`
	EngineLogLevel string  `json:"engine_log_level" yaml:"engine_log_level" toml:"engine_log_level"`
	// EngineLibPath locates the llama.cpp shared libraries.
	EngineLibPath string `json:"engine_lib_path" yaml:"engine_lib_path" toml:"engine_lib_path"`
}

// Defaults.
const (
	DefaultModelsDir      = "~/models/llm"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultEngineLogLevel = "warn"
	DefaultQueueDepth     = 64
	maxDefaultWorkers     = 4
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no default can repair.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Threads, validation.Min(0)),
		validation.Field(&c.ContextSize, validation.Min(0)),
		validation.Field(&c.MaxTokens, validation.Min(0)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.QueueDepth, validation.Min(0)),
		validation.Field(&c.LogLevel, validation.In("", "debug", "info", "warn", "warning", "error", "off", "none", "disabled")),
		validation.Field(&c.LogFormat, validation.In("", "console", "json")),
		validation.Field(&c.EngineLogLevel, validation.By(func(v any) error {
			s, _ := v.(string)
			if s == "" {
				return nil
			}
			_, err := types.ParseLogLevel(s)
			return err
		})),
	)
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.Threads == 0 {
		c.Threads = 1
	}
	if c.FlashAttention == nil {
		c.FlashAttention = types.Bool(true)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = types.DefaultMaxTokens
	}
	if c.Seed == nil {
		c.Seed = types.Seed(types.DefaultSeed)
	}
	if c.Workers == 0 {
		c.Workers = max(1, min(runtime.NumCPU(), maxDefaultWorkers))
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.EngineLogLevel == "" {
		c.EngineLogLevel = DefaultEngineLogLevel
	}
	return c
}

// ContextOptions projects the context settings of c.
func (c Config) ContextOptions() types.ContextOptions {
	return types.ContextOptions{Threads: c.Threads, ContextSize: c.ContextSize, FlashAttention: c.FlashAttention}
}

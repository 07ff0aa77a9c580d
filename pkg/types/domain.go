package types

import (
	"fmt"
	"strings"
)

// Model represents a discoverable model file on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	ID string `json:"id" yaml:"id"`
	// Human-friendly name.
	Name string `json:"name" yaml:"name"`
	// Absolute path to the model file on disk.
	Path string `json:"path" yaml:"path"`
	// Size of the model file in bytes.
	SizeBytes int64 `json:"size_bytes" yaml:"size_bytes"`
}

// ModelHandle refers to a loaded model. The zero value never refers to a live model.
type ModelHandle uint64

// ContextHandle refers to a decoding context bound to one model. The zero value
// never refers to a live context.
type ContextHandle uint64

func (h ModelHandle) String() string   { return formatHandle("model", uint64(h)) }
func (h ContextHandle) String() string { return formatHandle("context", uint64(h)) }

// IsZero reports whether h is the unset handle.
func (h ModelHandle) IsZero() bool { return h == 0 }

// IsZero reports whether h is the unset handle.
func (h ContextHandle) IsZero() bool { return h == 0 }

func formatHandle(kind string, v uint64) string {
	return fmt.Sprintf("%s#%d.%d", kind, v>>32, uint32(v))
}

// TokenName is one of the special vocabulary tokens a model may define.
type TokenName string

const (
	TokenBOS TokenName = "BOS"
	TokenEOS TokenName = "EOS"
	TokenPAD TokenName = "PAD"
	TokenEOT TokenName = "EOT"
	TokenSEP TokenName = "SEP"
	TokenCLS TokenName = "CLS"
	TokenNL  TokenName = "NL"
)

// TokenNames lists every recognized special token name.
var TokenNames = []TokenName{TokenBOS, TokenEOS, TokenPAD, TokenEOT, TokenSEP, TokenCLS, TokenNL}

// ParseTokenName maps s (case-insensitive) onto a TokenName.
// The second result is false when s is not a recognized name.
func ParseTokenName(s string) (TokenName, bool) {
	n := TokenName(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range TokenNames {
		if n == known {
			return n, true
		}
	}
	return "", false
}

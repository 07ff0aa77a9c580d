// Package manager owns model and context lifetimes and runs generation requests
// against an engine.Engine. It is structured into small files by concern:
//
//   - manager.go: core Manager type, handle tables, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - errors.go: Error type, kind constructors and predicates (IsInvalidHandle, ...).
//   - metrics.go: Prometheus collectors.
//   - model.go: LoadModel / ReleaseModel.
//   - contexts.go: CreateContext / ReleaseContext.
//   - generate.go: the tokenize, decode, sample, detokenize loop.
//   - tokens.go: special token resolution.
//
// All methods are synchronous and safe for concurrent use. Handles are
// generation-checked: a released handle reports an invalid-handle error instead
// of reaching freed engine memory. A context accepts one generation at a time,
// and a model cannot be released while contexts created from it are still live.
//
// Asynchronous dispatch lives in the scheduler package; pkg/llmhost composes both.
package manager

// Package llmhost hosts local language models: it loads model files, allocates
// decoding contexts and generates text from prompts.
//
// Every stateful operation has a synchronous form that runs on the calling
// goroutine and an Async form that validates its arguments immediately, runs
// the operation on a worker pool and reports through a Future. Models and
// contexts are referenced by generation-checked handles, so using a handle
// after its release fails with types.KindInvalidHandle.
package llmhost

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"llmhost/internal/engine"
	"llmhost/internal/manager"
	"llmhost/internal/scheduler"
	"llmhost/pkg/types"
)

// Config tunes a Runtime. Zero values select defaults.
type Config struct {
	// Engine performs inference. Nil selects the compiled-in backend.
	Engine engine.Engine
	// EngineLibPath locates the llama.cpp shared libraries for the compiled-in
	// backend. Ignored when Engine is set.
	EngineLibPath string
	// Logger receives runtime and engine logs. Nil disables logging.
	Logger *zerolog.Logger
	// Registerer receives the runtime's collectors. Nil uses a private registry.
	Registerer prometheus.Registerer
	// Workers and QueueDepth size the pool behind the Async methods.
	Workers    int
	QueueDepth int
	// EngineLogLevel is the initial engine log threshold. Zero means warn.
	EngineLogLevel types.LogLevel
	// QuietEngine silences engine logging from construction on.
	QuietEngine bool
}

// Stats counts live resources.
type Stats = manager.Stats

// Runtime owns a set of models and contexts and the workers serving the Async
// methods. It is safe for concurrent use; a single context still runs one
// generation at a time.
type Runtime struct {
	mgr   *manager.Manager
	sched *scheduler.Scheduler
	log   zerolog.Logger
}

// New builds a Runtime.
func New(cfg Config) (*Runtime, error) {
	eng := cfg.Engine
	if eng == nil {
		var err error
		eng, err = engine.New(engine.Options{LibPath: cfg.EngineLibPath})
		if err != nil {
			return nil, manager.ErrDependencyUnavailable("new", err)
		}
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Engine:         eng,
		Logger:         &log,
		Registerer:     reg,
		EngineLogLevel: cfg.EngineLogLevel,
		QuietEngine:    cfg.QuietEngine,
	})
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(scheduler.Config{
		Workers:    cfg.Workers,
		QueueDepth: cfg.QueueDepth,
		Registerer: reg,
		Logger:     &log,
	})
	if err != nil {
		return nil, err
	}
	return &Runtime{mgr: mgr, sched: sched, log: log}, nil
}

// SetLogLevel changes the minimum severity of engine log lines. LogNone
// silences the engine. It may be called while generations run.
func (r *Runtime) SetLogLevel(l types.LogLevel) { r.mgr.SetLogLevel(l) }

// LogLevel returns the engine log threshold.
func (r *Runtime) LogLevel() types.LogLevel { return r.mgr.LogLevel() }

// Stats returns the number of live models and contexts.
func (r *Runtime) Stats() Stats { return r.mgr.Stats() }

// LoadModel loads the model file at path.
func (r *Runtime) LoadModel(path string) (types.ModelHandle, error) {
	return r.mgr.LoadModel(path)
}

// LoadModelAsync is the asynchronous form of LoadModel.
func (r *Runtime) LoadModelAsync(path string) *Future[types.ModelHandle] {
	const op = "load_model"
	if err := validatePath(op, path); err != nil {
		return rejected[types.ModelHandle](err)
	}
	return submit(r, op, func() (types.ModelHandle, error) { return r.mgr.LoadModel(path) })
}

// CreateContext allocates a decoding context on model m.
func (r *Runtime) CreateContext(m types.ModelHandle, opts types.ContextOptions) (types.ContextHandle, error) {
	return r.mgr.CreateContext(m, opts)
}

// CreateContextAsync is the asynchronous form of CreateContext.
func (r *Runtime) CreateContextAsync(m types.ModelHandle, opts types.ContextOptions) *Future[types.ContextHandle] {
	const op = "create_context"
	if err := multierr.Combine(validateContextOptions(op, opts), r.probeModel(op, m)); err != nil {
		return rejected[types.ContextHandle](err)
	}
	return submit(r, op, func() (types.ContextHandle, error) { return r.mgr.CreateContext(m, opts) })
}

// GenerateText runs one request on context c of model m. An empty string with
// a nil error means the model ended the response immediately.
func (r *Runtime) GenerateText(ctx context.Context, m types.ModelHandle, c types.ContextHandle, req types.GenerateRequest) (string, error) {
	return r.mgr.Generate(ctx, m, c, req)
}

// GenerateTextAsync is the asynchronous form of GenerateText. Once enqueued the
// request runs to completion.
func (r *Runtime) GenerateTextAsync(m types.ModelHandle, c types.ContextHandle, req types.GenerateRequest) *Future[string] {
	const op = "generate"
	if err := multierr.Combine(validateRequest(op, req), r.probeModel(op, m), r.probeContext(op, c)); err != nil {
		return rejected[string](err)
	}
	return submit(r, op, func() (string, error) {
		return r.mgr.Generate(context.Background(), m, c, req)
	})
}

// ResolveSpecialToken returns the text of the named special token of model m.
// ok is false when the vocabulary does not define the token.
func (r *Runtime) ResolveSpecialToken(m types.ModelHandle, name string) (text string, ok bool, err error) {
	return r.mgr.ResolveSpecialToken(m, name)
}

// ReleaseContext frees context c.
func (r *Runtime) ReleaseContext(c types.ContextHandle) error { return r.mgr.ReleaseContext(c) }

// ReleaseContextAsync is the asynchronous form of ReleaseContext.
func (r *Runtime) ReleaseContextAsync(c types.ContextHandle) *Future[struct{}] {
	const op = "release_context"
	if err := r.probeContext(op, c); err != nil {
		return rejected[struct{}](err)
	}
	return submit(r, op, func() (struct{}, error) { return struct{}{}, r.mgr.ReleaseContext(c) })
}

// ReleaseModel frees model m. Its contexts must be released first.
func (r *Runtime) ReleaseModel(m types.ModelHandle) error { return r.mgr.ReleaseModel(m) }

// ReleaseModelAsync is the asynchronous form of ReleaseModel.
func (r *Runtime) ReleaseModelAsync(m types.ModelHandle) *Future[struct{}] {
	const op = "release_model"
	if err := r.probeModel(op, m); err != nil {
		return rejected[struct{}](err)
	}
	return submit(r, op, func() (struct{}, error) { return struct{}{}, r.mgr.ReleaseModel(m) })
}

// RunInference loads a model, generates one response and releases everything
// it allocated, also when generation fails. Release errors are combined with
// the generation error.
func (r *Runtime) RunInference(ctx context.Context, opts types.InferenceOptions) (text string, err error) {
	mh, err := r.LoadModel(opts.ModelPath)
	if err != nil {
		return "", err
	}
	defer func() {
		err = multierr.Append(err, r.ReleaseModel(mh))
		if err != nil {
			text = ""
		}
	}()
	ch, err := r.CreateContext(mh, opts.Context)
	if err != nil {
		return "", err
	}
	defer func() { err = multierr.Append(err, r.ReleaseContext(ch)) }()
	return r.GenerateText(ctx, mh, ch, opts.Request())
}

// Close stops accepting Async work, waits for queued work to finish and frees
// every model and context still live. If ctx ends before the queue drains,
// nothing is freed and ctx's error is returned. Panics recovered from
// completion callbacks are reported alongside any leak.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.sched.Close(ctx)
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		return err
	}
	if leaked := r.mgr.Close(); leaked > 0 {
		err = multierr.Append(err, fmt.Errorf("llmhost: %d resource(s) still in use", leaked))
	}
	return err
}

// submit runs fn on the worker pool and settles the returned future with its
// outcome. A scheduler refusal settles it immediately as KindUnavailable.
func submit[T any](r *Runtime, op string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	var v T
	err := r.sched.Submit(scheduler.Task{
		Op: op,
		Run: func() (err error) {
			v, err = fn()
			return err
		},
		Done: func(err error) { f.resolve(v, err) },
	})
	if err != nil {
		r.log.Warn().Err(err).Str("op", op).Msg("async task rejected")
		return rejected[T](manager.ErrUnavailable(op, err))
	}
	return f
}

package llmhost

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llmhost/internal/engine"
	"llmhost/internal/engine/enginetest"
	"llmhost/internal/scheduler"
	"llmhost/pkg/types"
)

func TestEndToEnd(t *testing.T) {
	eng := enginetest.New("2+2 is four")
	rt := newRuntime(t, eng, Config{})
	ctx := context.Background()

	m, err := rt.LoadModel(writeModelFile(t, "tinymodel.bin"))
	require.NoError(t, err)
	c, err := rt.CreateContext(m, types.ContextOptions{Threads: 2})
	require.NoError(t, err)
	require.Equal(t, 2, eng.LastCtxParams.Threads)
	require.True(t, eng.LastCtxParams.FlashAttention)

	out, err := rt.GenerateText(ctx, m, c, types.GenerateRequest{Prompt: "2+2=", MaxTokens: 4})
	require.NoError(t, err)
	require.Equal(t, "2+2 ", out)

	require.NoError(t, rt.ReleaseContext(c))
	_, err = rt.GenerateText(ctx, m, c, types.GenerateRequest{Prompt: "2+2="})
	require.True(t, IsKind(err, types.KindInvalidHandle))
	require.NoError(t, rt.ReleaseModel(m))
	require.Equal(t, Stats{}, rt.Stats())
}

func TestEndToEndEarlyStop(t *testing.T) {
	rt := newRuntime(t, enginetest.New("4"), Config{})
	m, err := rt.LoadModel(writeModelFile(t, "tinymodel.bin"))
	require.NoError(t, err)
	c, err := rt.CreateContext(m, types.ContextOptions{Threads: 2})
	require.NoError(t, err)

	out, err := rt.GenerateText(context.Background(), m, c, types.GenerateRequest{Prompt: "2+2=", MaxTokens: 4})
	require.NoError(t, err)
	require.Equal(t, "4", out)
}

func TestAsyncLifecycle(t *testing.T) {
	eng := enginetest.New("")
	rt := newRuntime(t, eng, Config{Workers: 2})
	ctx := context.Background()

	m, err := rt.LoadModelAsync(writeModelFile(t, "a.gguf")).Wait(ctx)
	require.NoError(t, err)
	c, err := rt.CreateContextAsync(m, types.ContextOptions{}).Wait(ctx)
	require.NoError(t, err)

	// immediate end of generation is a successful empty result
	out, err := rt.GenerateTextAsync(m, c, types.GenerateRequest{Prompt: "hello"}).Wait(ctx)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = rt.ReleaseContextAsync(c).Wait(ctx)
	require.NoError(t, err)
	_, err = rt.ReleaseModelAsync(m).Wait(ctx)
	require.NoError(t, err)

	s := eng.Snapshot()
	require.Equal(t, 1, s.FreedCtx)
	require.Equal(t, 1, s.FreedModels)
}

func TestAsyncRejectsBeforeEnqueue(t *testing.T) {
	eng := enginetest.New("x")
	rt := newRuntime(t, eng, Config{Workers: 1})
	ctx := context.Background()
	m, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	c, err := rt.CreateContext(m, types.ContextOptions{})
	require.NoError(t, err)

	cases := []struct {
		name string
		wait func() error
		kind types.ErrorKind
	}{
		{"empty path", func() error { _, err := rt.LoadModelAsync("").Result(); return err }, types.KindInvalidArgument},
		{"negative threads", func() error {
			_, err := rt.CreateContextAsync(m, types.ContextOptions{Threads: -1}).Result()
			return err
		}, types.KindInvalidArgument},
		{"zero model", func() error { _, err := rt.CreateContextAsync(0, types.ContextOptions{}).Result(); return err }, types.KindInvalidHandle},
		{"negative budget", func() error {
			_, err := rt.GenerateTextAsync(m, c, types.GenerateRequest{Prompt: "p", MaxTokens: -3}).Result()
			return err
		}, types.KindInvalidArgument},
		{"stale context", func() error {
			_, err := rt.GenerateTextAsync(m, c+1, types.GenerateRequest{Prompt: "p"}).Result()
			return err
		}, types.KindInvalidHandle},
		{"release unknown context", func() error { _, err := rt.ReleaseContextAsync(0).Result(); return err }, types.KindInvalidHandle},
		{"release unknown model", func() error { _, err := rt.ReleaseModelAsync(0).Result(); return err }, types.KindInvalidHandle},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.wait()
			require.NotErrorIs(t, err, ErrPending, "must be rejected synchronously")
			require.True(t, IsKind(err, tc.kind), "got %v", err)
		})
	}

	before := eng.Snapshot()
	require.Equal(t, 1, before.LoadedModels)
	require.Equal(t, 1, before.CreatedCtx)
	require.Zero(t, before.DecodeCalls)

	out, err := rt.GenerateTextAsync(m, c, types.GenerateRequest{Prompt: "p"}).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "x", out)
}

func TestAsyncPropagatesEngineFailure(t *testing.T) {
	eng := enginetest.New("hello")
	rt := newRuntime(t, eng, Config{Workers: 1})
	ctx := context.Background()
	m, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	c, err := rt.CreateContext(m, types.ContextOptions{})
	require.NoError(t, err)

	eng.Configure(func(e *enginetest.Engine) { e.DecodeFailAt = 2 })
	out, err := rt.GenerateTextAsync(m, c, types.GenerateRequest{Prompt: "p"}).Wait(ctx)
	require.True(t, IsKind(err, types.KindDecodeFailure))
	require.Empty(t, out)

	_, err = rt.LoadModelAsync("/does/not/exist.gguf").Wait(ctx)
	require.True(t, IsKind(err, types.KindModelLoadFailure))

	// context survives the failed request
	eng.Configure(func(e *enginetest.Engine) { e.DecodeFailAt = 0 })
	out, err = rt.GenerateTextAsync(m, c, types.GenerateRequest{Prompt: "p"}).Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
}

func TestAsyncQueueFullIsUnavailable(t *testing.T) {
	eng := enginetest.New("ab")
	rt := newRuntime(t, eng, Config{Workers: 1, QueueDepth: 1})
	ctx := context.Background()
	m, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	var ctxs []types.ContextHandle
	for i := 0; i < 3; i++ {
		c, err := rt.CreateContext(m, types.ContextOptions{})
		require.NoError(t, err)
		ctxs = append(ctxs, c)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	first := rt.GenerateTextAsync(m, ctxs[0], types.GenerateRequest{
		Prompt: "p",
		OnToken: func(string) error {
			select {
			case <-started:
			default:
				close(started)
				<-release
			}
			return nil
		},
	})
	<-started
	queued := rt.GenerateTextAsync(m, ctxs[1], types.GenerateRequest{Prompt: "p"})
	_, err = rt.GenerateTextAsync(m, ctxs[2], types.GenerateRequest{Prompt: "p"}).Result()
	require.True(t, IsKind(err, types.KindUnavailable))
	require.ErrorIs(t, err, scheduler.ErrQueueFull)

	close(release)
	out, err := first.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "ab", out)
	out, err = queued.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "ab", out)
}

func TestAsyncPanicRejectsFuture(t *testing.T) {
	eng := enginetest.New("ab")
	rt := newRuntime(t, eng, Config{Workers: 1})
	ctx := context.Background()
	m, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	c, err := rt.CreateContext(m, types.ContextOptions{})
	require.NoError(t, err)

	_, err = rt.GenerateTextAsync(m, c, types.GenerateRequest{
		Prompt:  "p",
		OnToken: func(string) error { panic("callback bug") },
	}).Wait(ctx)
	var pe *scheduler.PanicError
	require.ErrorAs(t, err, &pe)
	require.Zero(t, eng.Snapshot().OpenSamplers)

	// the context is not left busy
	require.NoError(t, rt.ReleaseContext(c))
}

func TestCloseRejectsNewWork(t *testing.T) {
	eng := enginetest.New("")
	rt := newRuntime(t, eng, Config{})
	m, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	_, err = rt.CreateContext(m, types.ContextOptions{})
	require.NoError(t, err)

	require.NoError(t, rt.Close(context.Background()))
	s := eng.Snapshot()
	require.Equal(t, 1, s.FreedCtx)
	require.Equal(t, 1, s.FreedModels)

	_, err = rt.LoadModelAsync(writeModelFile(t, "b.gguf")).Result()
	require.True(t, IsKind(err, types.KindUnavailable))
	require.ErrorIs(t, err, scheduler.ErrClosed)
}

func TestRunInference(t *testing.T) {
	eng := enginetest.New("quack")
	rt := newRuntime(t, eng, Config{})

	var streamed string
	out, err := rt.RunInference(context.Background(), types.InferenceOptions{
		ModelPath:    writeModelFile(t, "duck.gguf"),
		Prompt:       "What do ducks say?",
		SystemPrompt: "You are a duck.",
		Context:      types.ContextOptions{Threads: 2},
		OnToken:      func(s string) error { streamed += s; return nil },
	})
	require.NoError(t, err)
	require.Equal(t, "quack", out)
	require.Equal(t, out, streamed)
	require.Equal(t, Stats{}, rt.Stats())
	s := eng.Snapshot()
	require.Equal(t, 1, s.FreedCtx)
	require.Equal(t, 1, s.FreedModels)
}

func TestRunInferenceReleasesOnFailure(t *testing.T) {
	eng := enginetest.New("quack")
	eng.DecodeFailAt = 1
	rt := newRuntime(t, eng, Config{})

	out, err := rt.RunInference(context.Background(), types.InferenceOptions{
		ModelPath: writeModelFile(t, "duck.gguf"),
		Prompt:    "hi",
	})
	require.True(t, IsKind(err, types.KindDecodeFailure))
	require.Empty(t, out)
	require.Equal(t, Stats{}, rt.Stats())

	eng.Configure(func(e *enginetest.Engine) { e.DecodeFailAt = 0; e.ContextErr = errors.New("oom") })
	_, err = rt.RunInference(context.Background(), types.InferenceOptions{
		ModelPath: writeModelFile(t, "duck.gguf"),
		Prompt:    "hi",
	})
	require.True(t, IsKind(err, types.KindContextCreateFailure))
	require.Equal(t, Stats{}, rt.Stats())

	_, err = rt.RunInference(context.Background(), types.InferenceOptions{ModelPath: ""})
	require.True(t, IsKind(err, types.KindInvalidArgument))
}

func TestSetLogLevel(t *testing.T) {
	rt := newRuntime(t, enginetest.New(""), Config{EngineLogLevel: types.LogInfo})
	require.Equal(t, types.LogInfo, rt.LogLevel())
	rt.SetLogLevel(types.LogNone)
	require.Equal(t, types.LogNone, rt.LogLevel())
}

func TestQuietEngineStartsSilent(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	rt := newRuntime(t, enginetest.New(""), Config{Logger: &log, EngineLogLevel: types.LogDebug, QuietEngine: true})
	require.Equal(t, types.LogNone, rt.LogLevel())

	_, err := rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "model loaded")
	require.NotContains(t, buf.String(), `"component":"engine"`)
}

func TestDefaultEngineWithoutBackend(t *testing.T) {
	if engine.Built {
		t.Skip("real backend compiled in")
	}
	rt, err := New(Config{})
	require.NoError(t, err)
	defer rt.Close(context.Background())

	_, err = rt.LoadModel(writeModelFile(t, "a.gguf"))
	require.True(t, IsKind(err, types.KindDependencyUnavailable))
}

func TestKindOfForeignErrors(t *testing.T) {
	require.Equal(t, types.KindUnknown, KindOf(errors.New("x")))
	require.False(t, IsKind(nil, types.KindUnknown))
}

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"llmhost/internal/config"
	"llmhost/internal/engine"
	"llmhost/internal/engine/enginetest"
	"llmhost/pkg/types"
)

type harness struct {
	app            *app
	eng            *enginetest.Engine
	stdout, stderr bytes.Buffer
}

func newHarness(reply string) *harness {
	h := &harness{eng: enginetest.New(reply)}
	h.app = newApp(&h.stdout, &h.stderr)
	h.app.newEngine = func(string) (engine.Engine, error) { return h.eng, nil }
	return h
}

func (h *harness) exec(args ...string) error {
	root := h.app.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func writeModel(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("GGUF"), 0o644))
	return p
}

func TestRunStreamsReply(t *testing.T) {
	h := newHarness("4")
	model := writeModel(t, t.TempDir(), "tiny.gguf")

	require.NoError(t, h.exec("run", "-m", model, "-p", "2+2=", "-t", "2", "-n", "4"))
	require.Equal(t, "4\n", h.stdout.String())
	require.Equal(t, 2, h.eng.LastCtxParams.Threads)
	require.Equal(t, engine.Greedy(), h.eng.LastSampler)

	s := h.eng.Snapshot()
	require.Equal(t, 1, s.FreedCtx)
	require.Equal(t, 1, s.FreedModels)
}

func TestRunFlagsOverrideConfig(t *testing.T) {
	h := newHarness("abcdef")
	dir := t.TempDir()
	writeModel(t, dir, "tiny.gguf")
	cfg := filepath.Join(dir, "llmhost.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(
		"models_dir: "+dir+"\nmodel: tiny\nsystem_prompt: be brief\nmax_tokens: 2\n"), 0o644))

	require.NoError(t, h.exec("--config", cfg, "run", "-p", "hi"))
	require.Equal(t, "ab\n", h.stdout.String())
	require.Contains(t, h.eng.Prompt(), "be brief")

	h.stdout.Reset()
	require.NoError(t, h.exec("--config", cfg, "run", "-p", "hi", "-n", "3", "-s", "other", "-d", "9", "--no-flash-attention"))
	require.LessOrEqual(t, len(strings.TrimSuffix(h.stdout.String(), "\n")), 3)
	require.Contains(t, h.eng.Prompt(), "other")
	require.Equal(t, engine.SeededRandom(9), h.eng.LastSampler)
	require.False(t, h.eng.LastCtxParams.FlashAttention)
}

func TestRunWritesMetrics(t *testing.T) {
	h := newHarness("ok")
	dir := t.TempDir()
	model := writeModel(t, dir, "tiny.gguf")
	metrics := filepath.Join(dir, "metrics.prom")

	require.NoError(t, h.exec("run", "-m", model, "-p", "hi", "--metrics-file", metrics))
	b, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(b), `llmhost_manager_generations_total{outcome="stop"} 1`)
	require.Contains(t, string(b), "llmhost_manager_generated_tokens_total 2")
}

func TestRunRequiresModelAndPrompt(t *testing.T) {
	h := newHarness("")
	require.ErrorContains(t, h.exec("run", "-p", "hi"), "--model")
	model := writeModel(t, t.TempDir(), "tiny.gguf")
	require.ErrorContains(t, h.exec("run", "-m", model), "--prompt")
	require.Error(t, h.exec("run", "-m", "no-such-model", "-p", "hi", "--models-dir", t.TempDir()))
}

func TestTokens(t *testing.T) {
	h := newHarness("")
	model := writeModel(t, t.TempDir(), "tiny.gguf")

	require.NoError(t, h.exec("tokens", "-m", model, "EOS", "cls"))
	require.Equal(t, "EOS\t\"</s>\"\ncls\t(undefined)\n", h.stdout.String())

	h.stdout.Reset()
	require.NoError(t, h.exec("tokens", "-m", model))
	require.Equal(t, 7, strings.Count(h.stdout.String(), "\n"))

	require.Error(t, h.exec("tokens", "-m", model, "--names", "XYZ"))
}

func TestModels(t *testing.T) {
	h := newHarness("")
	dir := t.TempDir()
	writeModel(t, dir, "b.gguf")
	writeModel(t, dir, "a.gguf")
	writeModel(t, dir, "notes.txt")

	require.NoError(t, h.exec("models", dir))
	out := h.stdout.String()
	require.True(t, strings.HasPrefix(out, "ID"))
	require.Less(t, strings.Index(out, "a.gguf"), strings.Index(out, "b.gguf"))
	require.NotContains(t, out, "notes.txt")

	h.stdout.Reset()
	require.NoError(t, h.exec("models", "--json", "--models-dir", dir))
	require.Contains(t, h.stdout.String(), `"size_bytes": 4`)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("GGUF-bytes"))
	}))
	defer srv.Close()

	h := newHarness("")
	dest := filepath.Join(t.TempDir(), "sub", "m.gguf")
	require.NoError(t, h.exec("download", "-u", srv.URL, "-p", dest))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "GGUF-bytes", string(b))
	require.Contains(t, h.stderr.String(), "Downloaded: 100%")

	require.ErrorContains(t, h.exec("download", "-p", dest), "--url")
}

func TestBadConfigFails(t *testing.T) {
	h := newHarness("")
	cfg := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log_format: xml\n"), 0o644))
	require.Error(t, h.exec("--config", cfg, "models", t.TempDir()))
	require.Error(t, h.exec("--log-format", "xml", "models", t.TempDir()))
}

func TestEngineLogLevelNoneStartsSilent(t *testing.T) {
	h := newHarness("")
	h.app.cfg = config.Config{EngineLogLevel: "none"}.WithDefaults()

	rt, err := h.app.newRuntime(prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close(context.Background())
	require.Equal(t, types.LogNone, rt.LogLevel())
}

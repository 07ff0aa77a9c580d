package llmhost

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"llmhost/internal/engine/enginetest"
)

func writeModelFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("GGUF"), 0o644))
	return p
}

func newRuntime(t *testing.T, eng *enginetest.Engine, cfg Config) *Runtime {
	t.Helper()
	cfg.Engine = eng
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	rt, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llmhost/internal/engine/enginetest"
	"llmhost/pkg/types"
)

// writeModelFile creates a small placeholder model file and returns its path.
func writeModelFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("GGUF"), 0o644))
	return p
}

type fixture struct {
	m   *Manager
	eng *enginetest.Engine
	reg *prometheus.Registry
}

func newFixture(t *testing.T, reply string) fixture {
	t.Helper()
	eng := enginetest.New(reply)
	reg := prometheus.NewRegistry()
	log := zerolog.Nop()
	m, err := NewWithConfig(ManagerConfig{Engine: eng, Logger: &log, Registerer: reg})
	require.NoError(t, err)
	return fixture{m: m, eng: eng, reg: reg}
}

// open loads a model and creates a default context on it.
func (f fixture) open(t *testing.T) (types.ModelHandle, types.ContextHandle) {
	t.Helper()
	mh, err := f.m.LoadModel(writeModelFile(t, "tiny.gguf"))
	require.NoError(t, err)
	ch, err := f.m.CreateContext(mh, types.ContextOptions{})
	require.NoError(t, err)
	return mh, ch
}

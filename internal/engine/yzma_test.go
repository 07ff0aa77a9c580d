//go:build yzma

package engine

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"llmhost/pkg/types"
)

// testModelPath returns the GGUF model named by YZMA_TEST_MODEL, skipping the
// test when it or YZMA_LIB is unset.
func testModelPath(t *testing.T) string {
	t.Helper()
	if os.Getenv("YZMA_LIB") == "" {
		t.Skip("YZMA_LIB not set")
	}
	p := os.Getenv("YZMA_TEST_MODEL")
	if p == "" {
		t.Skip("YZMA_TEST_MODEL not set")
	}
	return p
}

func newTestEngine(t *testing.T) (Engine, Model) {
	t.Helper()
	path := testModelPath(t)
	e, err := New(Options{})
	require.NoError(t, err)
	require.True(t, Built)
	m, err := e.LoadModel(path)
	require.NoError(t, err)
	t.Cleanup(func() { e.FreeModel(m) })
	return e, m
}

func TestYzmaGenerateCycle(t *testing.T) {
	e, m := newTestEngine(t)

	var lines atomic.Int32
	e.SetLogSink(func(types.LogLevel, string) { lines.Add(1) })
	defer e.SetLogSink(nil)

	c, err := e.CreateContext(m, ContextParams{Threads: 2, ContextSize: 512})
	require.NoError(t, err)
	defer e.FreeContext(c)
	require.Positive(t, lines.Load(), "native context setup lines reach the sink")
	require.NoError(t, e.ClearMemory(c))

	const text = "The capital of France is"
	n, err := e.Tokenize(m, text, nil)
	require.NoError(t, err)
	require.Positive(t, n)
	toks := make([]Token, n)
	got, err := e.Tokenize(m, text, toks)
	require.NoError(t, err)
	require.Equal(t, n, got)

	_, err = e.Tokenize(m, text, make([]Token, n+1))
	require.Error(t, err, "fill pass needs a buffer of the sized length")

	s, err := e.NewSampler(m, Greedy())
	require.NoError(t, err)
	defer e.FreeSampler(s)

	batch := toks
	var out []byte
	for i := 0; i < 8; i++ {
		require.NoError(t, e.Decode(c, batch))
		tok := e.Sample(s, c)
		require.NotEqual(t, NullToken, tok)
		if e.IsEndOfGeneration(m, tok) {
			break
		}
		piece, err := e.TokenToPiece(m, tok)
		require.NoError(t, err)
		out = append(out, piece...)
		batch = []Token{tok}
	}
	require.NotEmpty(t, out)

	require.NoError(t, e.ClearMemory(c))
	require.NoError(t, e.Decode(c, toks), "cleared context accepts the prompt again")
}

func TestYzmaSpecialTokens(t *testing.T) {
	e, m := newTestEngine(t)

	eos := e.SpecialToken(m, types.TokenEOS)
	require.NotEqual(t, NullToken, eos)
	require.True(t, e.IsEndOfGeneration(m, eos))
	require.Equal(t, e.SpecialToken(m, types.TokenBOS), e.SpecialToken(m, types.TokenCLS))

	text, err := e.TokenText(m, eos)
	require.NoError(t, err)
	require.NotEmpty(t, text)
	require.Equal(t, NullToken, e.SpecialToken(m, types.TokenName("MASK")))
}

func TestYzmaSeededSampler(t *testing.T) {
	e, m := newTestEngine(t)
	s, err := e.NewSampler(m, SeededRandom(42))
	require.NoError(t, err)
	e.FreeSampler(s)
}

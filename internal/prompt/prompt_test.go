package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildTemplated(t *testing.T) {
	got := Build("Be brief.", "How old can ducks get?")
	want := "<|im_start|>system\nBe brief.<|im_end|>\n" +
		"<|im_start|>user\nHow old can ducks get?<|im_end|>\n" +
		"<|im_start|>assistant\n"
	require.Equal(t, want, got)
}

func TestBuildEmptySystem(t *testing.T) {
	got := Build("", "hi")
	require.Equal(t, "<|im_start|>system\n<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n", got)
}

func TestBuildRawUserPrompt(t *testing.T) {
	raw := "!#<|im_start|>user quack<|im_end|><|im_start|>assistant"
	require.True(t, IsRaw(raw))
	require.Equal(t, "<|im_start|>user quack<|im_end|><|im_start|>assistant", Build("ignored", raw))
	require.Equal(t, Build("", raw), Build("a different system prompt", raw),
		"raw prompts must not depend on the system prompt")
}

func TestSentinelOnSystemPromptIsPlainText(t *testing.T) {
	got := Build("!#system text", "user text")
	require.Contains(t, got, "<|im_start|>system\n!#system text<|im_end|>")
	require.Contains(t, got, "<|im_start|>user\nuser text<|im_end|>")
}

func TestSentinelOnlyStripsOnce(t *testing.T) {
	require.Equal(t, "!#x", Build("", "!#!#x"))
	require.Equal(t, "", Build("sys", "!#"))
}

func TestSentinelMustBePrefix(t *testing.T) {
	require.False(t, IsRaw(" !#x"))
	require.Contains(t, Build("", "a !# b"), "user\na !# b")
}

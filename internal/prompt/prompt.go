// Package prompt turns a system and user prompt into the text handed to the
// tokenizer.
//
// By default both prompts are wrapped in a ChatML template ending with an open
// assistant turn. A user prompt starting with RawSentinel is instead passed
// through verbatim (minus the sentinel) and the system prompt is ignored. Only
// the user prompt is inspected for the sentinel; on the system prompt it is
// ordinary text.
package prompt

import "strings"

// RawSentinel marks a user prompt as a complete, pre-formatted prompt.
const RawSentinel = "!#"

const (
	turnStart = "<|im_start|>"
	turnEnd   = "<|im_end|>"
)

// IsRaw reports whether user carries the raw-mode sentinel.
func IsRaw(user string) bool { return strings.HasPrefix(user, RawSentinel) }

// Build returns the final prompt text for system and user.
func Build(system, user string) string {
	if IsRaw(user) {
		return strings.TrimPrefix(user, RawSentinel)
	}
	var b strings.Builder
	b.Grow(len(system) + len(user) + 96)
	writeTurn(&b, "system", system)
	writeTurn(&b, "user", user)
	b.WriteString(turnStart)
	b.WriteString("assistant\n")
	return b.String()
}

func writeTurn(b *strings.Builder, role, content string) {
	b.WriteString(turnStart)
	b.WriteString(role)
	b.WriteByte('\n')
	b.WriteString(content)
	b.WriteString(turnEnd)
	b.WriteByte('\n')
}

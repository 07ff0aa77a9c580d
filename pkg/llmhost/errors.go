package llmhost

import (
	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

// KindOf classifies err. Errors not produced by the runtime (a token callback's
// own error, context cancellation) are types.KindUnknown.
func KindOf(err error) types.ErrorKind { return manager.KindOf(err) }

// IsKind reports whether err is of kind k.
func IsKind(err error, k types.ErrorKind) bool { return err != nil && KindOf(err) == k }

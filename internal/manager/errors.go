package manager

import (
	"errors"
	"fmt"

	"llmhost/pkg/types"
)

// Error is the structured failure returned by every Manager operation.
type Error struct {
	Kind types.ErrorKind
	// Op names the failed operation (e.g. "load_model", "generate").
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind types.ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func newErrorf(kind types.ErrorKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) types.ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return types.KindUnknown
}

// ErrInvalidArgument reports a malformed argument.
func ErrInvalidArgument(op, msg string) error {
	return newError(types.KindInvalidArgument, op, errors.New(msg))
}

// IsInvalidArgument reports whether err is a malformed-argument failure.
func IsInvalidArgument(err error) bool { return KindOf(err) == types.KindInvalidArgument }

// ErrInvalidHandle reports an unknown or already released handle.
func ErrInvalidHandle(op string, h fmt.Stringer) error {
	return newErrorf(types.KindInvalidHandle, op, "%s is not live", h)
}

// IsInvalidHandle reports whether err indicates a stale or unknown handle.
func IsInvalidHandle(err error) bool { return KindOf(err) == types.KindInvalidHandle }

// ErrUnknownTokenName reports a special token name outside the closed set.
func ErrUnknownTokenName(name string) error {
	return newErrorf(types.KindUnknownTokenName, "resolve_special_token", "unknown token name %q", name)
}

// IsUnknownTokenName reports whether err is an unknown special token name.
func IsUnknownTokenName(err error) bool { return KindOf(err) == types.KindUnknownTokenName }

// ErrDependencyUnavailable signals a missing inference engine.
func ErrDependencyUnavailable(op string, err error) error {
	return newError(types.KindDependencyUnavailable, op, err)
}

// IsDependencyUnavailable reports whether err indicates the engine is not built in.
func IsDependencyUnavailable(err error) bool {
	return KindOf(err) == types.KindDependencyUnavailable
}

// IsModelLoadFailure reports whether err is a model load failure.
func IsModelLoadFailure(err error) bool { return KindOf(err) == types.KindModelLoadFailure }

// IsContextCreateFailure reports whether err is a context allocation failure.
func IsContextCreateFailure(err error) bool {
	return KindOf(err) == types.KindContextCreateFailure
}

// IsTokenizeFailure reports whether err is a tokenization failure.
func IsTokenizeFailure(err error) bool { return KindOf(err) == types.KindTokenizeFailure }

// IsDecodeFailure reports whether err is a decode failure.
func IsDecodeFailure(err error) bool { return KindOf(err) == types.KindDecodeFailure }

// IsTokenConversionFailure reports whether err is a token-to-text failure.
func IsTokenConversionFailure(err error) bool {
	return KindOf(err) == types.KindTokenConversionFailure
}

// ErrValidation wraps a failed argument check as an InvalidArgument error.
func ErrValidation(op string, err error) error {
	return newError(types.KindInvalidArgument, op, err)
}

// ErrUnavailable reports that work could not be scheduled.
func ErrUnavailable(op string, err error) error {
	return newError(types.KindUnavailable, op, err)
}

// IsUnavailable reports whether err means the work was never scheduled.
func IsUnavailable(err error) bool { return KindOf(err) == types.KindUnavailable }

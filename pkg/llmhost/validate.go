package llmhost

import (
	"github.com/invopop/validation"

	"llmhost/internal/manager"
	"llmhost/pkg/types"
)

// Argument checks run on the caller's goroutine before anything is enqueued.

func validatePath(op, path string) error {
	if err := validation.Validate(path, validation.Required); err != nil {
		return manager.ErrValidation(op, err)
	}
	return nil
}

func validateContextOptions(op string, opts types.ContextOptions) error {
	err := validation.ValidateStruct(&opts,
		validation.Field(&opts.Threads, validation.Min(0)),
		validation.Field(&opts.ContextSize, validation.Min(0)),
	)
	if err != nil {
		return manager.ErrValidation(op, err)
	}
	return nil
}

func validateRequest(op string, req types.GenerateRequest) error {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.MaxTokens, validation.Min(0)),
	)
	if err != nil {
		return manager.ErrValidation(op, err)
	}
	return nil
}

func (r *Runtime) probeModel(op string, h types.ModelHandle) error {
	if !r.mgr.ModelLive(h) {
		return manager.ErrInvalidHandle(op, h)
	}
	return nil
}

func (r *Runtime) probeContext(op string, h types.ContextHandle) error {
	if !r.mgr.ContextLive(h) {
		return manager.ErrInvalidHandle(op, h)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"llmhost/internal/common/fsutil"
	"llmhost/internal/registry"
	"llmhost/pkg/types"
)

const shutdownTimeout = 5 * time.Second

func (a *app) runCmd() *cobra.Command {
	var (
		model, prompt, system string
		threads, ctxSize      int
		maxTokens             int
		seed                  uint32
		noFlash               bool
		metricsFile           string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a response to one prompt",
		Example: "  llmhost run -m tiny.gguf -p \"2+2=\" -n 16\n" +
			"  llmhost run -m ~/models/llm/qwen.gguf -s \"You are terse.\" -p \"Name a duck.\" -d 42",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("model") {
				model = a.cfg.Model
			}
			if err := requireFlag("model", model); err != nil {
				return err
			}
			if err := requireFlag("prompt", prompt); err != nil {
				return err
			}
			path, err := a.resolveModel(model)
			if err != nil {
				return err
			}

			opts := types.InferenceOptions{
				ModelPath:    path,
				Prompt:       prompt,
				SystemPrompt: a.cfg.SystemPrompt,
				Context:      a.cfg.ContextOptions(),
				MaxTokens:    a.cfg.MaxTokens,
				Seed:         a.cfg.Seed,
				OnToken: func(fragment string) error {
					_, err := fmt.Fprint(a.stdout, fragment)
					return err
				},
			}
			if flags.Changed("system") {
				opts.SystemPrompt = system
			}
			if flags.Changed("threads") {
				opts.Context.Threads = threads
			}
			if flags.Changed("ctx-size") {
				opts.Context.ContextSize = ctxSize
			}
			if noFlash {
				opts.Context.FlashAttention = types.Bool(false)
			}
			if flags.Changed("max-tokens") {
				opts.MaxTokens = maxTokens
			}
			if flags.Changed("seed") {
				opts.Seed = types.Seed(seed)
			}

			reg := prometheus.NewRegistry()
			rt, err := a.newRuntime(reg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.log.Debug().Str("model", path).Int("threads", opts.Context.Threads).Msg("running inference")
			_, runErr := rt.RunInference(ctx, opts)
			fmt.Fprintln(a.stdout)
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := rt.Close(closeCtx); err != nil {
				a.log.Warn().Err(err).Msg("runtime close")
			}
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					a.log.Warn().Err(err).Str("path", metricsFile).Msg("write metrics")
				}
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringVarP(&model, "model", "m", "", "Model file, or a model name in the models directory")
	f.StringVarP(&prompt, "prompt", "p", "", "User prompt; a leading \"!#\" passes it to the model verbatim")
	f.StringVarP(&system, "system", "s", "", "System prompt")
	f.IntVarP(&threads, "threads", "t", 1, "Decoding threads")
	f.Uint32VarP(&seed, "seed", "d", types.DefaultSeed, "Sampling seed; the default selects greedy decoding")
	f.IntVarP(&maxTokens, "max-tokens", "n", types.DefaultMaxTokens, "Maximum tokens to generate")
	f.IntVar(&ctxSize, "ctx-size", 0, "Context window in tokens (0 = model default)")
	f.BoolVar(&noFlash, "no-flash-attention", false, "Disable flash attention")
	f.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	return cmd
}

// resolveModel accepts a path to a model file or the ID or name of a model in
// the models directory.
func (a *app) resolveModel(name string) (string, error) {
	if p, err := fsutil.ExpandHome(name); err == nil && fsutil.PathExists(p) {
		return p, nil
	}
	m, err := registry.Find(a.cfg.ModelsDir, name)
	if err != nil {
		return "", err
	}
	return m.Path, nil
}

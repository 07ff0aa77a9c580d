package main

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"llmhost/pkg/types"
)

func (a *app) tokensCmd() *cobra.Command {
	var model, names string
	cmd := &cobra.Command{
		Use:     "tokens [NAME...]",
		Short:   "Print the special tokens of a model",
		Long:    "Print the text of special tokens (BOS, EOS, PAD, EOT, SEP, CLS, NL). Tokens the model does not define are shown as (undefined).",
		Example: "  llmhost tokens -m tiny.gguf\n  llmhost tokens -m tiny.gguf EOS EOT\n  llmhost tokens -m tiny.gguf --names bos,eos",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("model") {
				model = a.cfg.Model
			}
			if err := requireFlag("model", model); err != nil {
				return err
			}
			path, err := a.resolveModel(model)
			if err != nil {
				return err
			}
			want := append(append([]string{}, args...), splitCSV(names)...)
			if len(want) == 0 {
				for _, n := range types.TokenNames {
					want = append(want, string(n))
				}
			}

			rt, err := a.newRuntime(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			m, err := rt.LoadModel(path)
			if err != nil {
				return err
			}
			defer rt.ReleaseModel(m)

			for _, name := range want {
				text, ok, err := rt.ResolveSpecialToken(m, name)
				if err != nil {
					return err
				}
				shown := "(undefined)"
				if ok {
					shown = strconv.Quote(text)
				}
				fmt.Fprintf(a.stdout, "%s\t%s\n", name, shown)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model file, or a model name in the models directory")
	cmd.Flags().StringVar(&names, "names", "", "Comma-separated token names")
	return cmd
}

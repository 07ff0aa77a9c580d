package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"llmhost/internal/download"
)

func (a *app) downloadCmd() *cobra.Command {
	var url, path string
	var attempts uint64
	cmd := &cobra.Command{
		Use:     "download",
		Short:   "Download a model file",
		Example: "  llmhost download -u https://example.com/tiny.gguf -p ~/models/llm/tiny.gguf",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("url", url); err != nil {
				return err
			}
			if err := requireFlag("path", path); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Downloading from %s to %s\n", url, path)
			last := -2
			n, err := download.Download(cmd.Context(), url, path, download.Options{
				Attempts: attempts,
				Logger:   &a.log,
				OnProgress: func(p download.Progress) {
					if pct := p.Percent(); pct != last {
						last = pct
						if pct >= 0 {
							fmt.Fprintf(a.stderr, "Downloaded: %d%%\r", pct)
						}
					}
				},
			})
			fmt.Fprintln(a.stderr)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s (%s)\n", path, humanBytes(n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&url, "url", "u", "", "Download URL")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Output path")
	cmd.Flags().Uint64Var(&attempts, "attempts", 3, "Attempts for transient failures")
	return cmd
}

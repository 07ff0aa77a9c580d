package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmhost/internal/config"
	"llmhost/internal/engine"
	"llmhost/internal/logging"
	"llmhost/pkg/llmhost"
	"llmhost/pkg/types"
)

// app carries state shared by all subcommands.
type app struct {
	stdout, stderr io.Writer
	cfg            config.Config
	log            zerolog.Logger
	// newEngine builds the inference engine; tests swap in a fake.
	newEngine func(libPath string) (engine.Engine, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		log:    zerolog.Nop(),
		newEngine: func(libPath string) (engine.Engine, error) {
			return engine.New(engine.Options{LibPath: libPath})
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	var (
		cfgPath        string
		logLevel       string
		logFormat      string
		engineLogLevel string
		modelsDir      string
		libPath        string
	)
	root := &cobra.Command{
		Use:           "llmhost",
		Short:         "Run local language models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "Config file (.yaml, .json or .toml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error|off")
	pf.StringVar(&logFormat, "log-format", "", "Log format: console|json")
	pf.StringVar(&engineLogLevel, "engine-log-level", "", "Engine log threshold: none|debug|info|warn|error")
	pf.StringVar(&modelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	pf.StringVar(&libPath, "lib", "", "Directory holding the llama.cpp shared libraries")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var cfg config.Config
		if cfgPath != "" {
			var err error
			if cfg, err = config.Load(cfgPath); err != nil {
				return err
			}
		}
		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if flags.Changed("engine-log-level") {
			cfg.EngineLogLevel = engineLogLevel
		}
		if flags.Changed("models-dir") {
			cfg.ModelsDir = modelsDir
		}
		if flags.Changed("lib") {
			cfg.EngineLibPath = libPath
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg.WithDefaults()
		a.log = logging.New(a.stderr, a.cfg.LogLevel, a.cfg.LogFormat)
		return nil
	}

	root.AddCommand(a.runCmd(), a.tokensCmd(), a.modelsCmd(), a.downloadCmd())
	return root
}

// newRuntime builds a Runtime from the loaded configuration.
func (a *app) newRuntime(reg prometheus.Registerer) (*llmhost.Runtime, error) {
	eng, err := a.newEngine(a.cfg.EngineLibPath)
	if err != nil {
		return nil, err
	}
	lvl, err := types.ParseLogLevel(a.cfg.EngineLogLevel)
	if err != nil {
		return nil, err
	}
	rt, err := llmhost.New(llmhost.Config{
		Engine:         eng,
		Logger:         &a.log,
		Registerer:     reg,
		Workers:        a.cfg.Workers,
		QueueDepth:     a.cfg.QueueDepth,
		EngineLogLevel: lvl,
		QuietEngine:    lvl == types.LogNone,
	})
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("required flag --%s not set", name)
	}
	return nil
}

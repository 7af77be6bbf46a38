package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/casualjim/hoot/config"
	"github.com/casualjim/hoot/provider/registry"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	configFile string
	logLevel   string
	logFormat  string
	timeout    time.Duration

	cfg config.Config
	reg *registry.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "hoot",
		Short:        "Run LLM completions against OpenAI, Anthropic, Vertex AI, Bedrock and Fireworks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.reg != nil {
				a.reg.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (defaults to ./"+config.DefaultFile+" when present)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.DurationVar(&a.timeout, "timeout", 0, "overall timeout of the command")

	root.AddCommand(
		newCompleteCmd(a, false),
		newCompleteCmd(a, true),
		newCheckCmd(a),
		newModelsCmd(a),
		newSchemaCheckCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	return setupLogging(cmd.ErrOrStderr(), cfg.Log)
}

// registry builds the provider registry on first use.
func (a *app) registry(ctx context.Context) (*registry.Registry, error) {
	if a.reg != nil {
		return a.reg, nil
	}
	reg, err := registry.FromConfig(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.reg = reg
	return reg, nil
}

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if a.timeout > 0 {
		return context.WithTimeout(cmd.Context(), a.timeout)
	}
	return context.WithCancel(cmd.Context())
}

func setupLogging(w io.Writer, cfg config.Log) error {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var log zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		log = zerolog.New(w).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
		log = zerolog.New(output).With().Timestamp().Logger()
	}
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
	return nil
}

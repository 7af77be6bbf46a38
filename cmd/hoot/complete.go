package main

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/provider"
	"github.com/spf13/cobra"
)

type completeFlags struct {
	model       string
	system      string
	schema      string
	structured  bool
	temperature float64
	maxTokens   int
	files       []string
	markdown    bool
}

func newCompleteCmd(a *app, stream bool) *cobra.Command {
	f := &completeFlags{}
	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Run a single completion and print the result",
		Long:  "Run a single completion. The prompt is read from stdin when no argument is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(cmd, a, f, args, stream)
		},
	}
	if stream {
		cmd.Use = "stream [prompt]"
		cmd.Short = "Stream a completion, printing partial output as it arrives"
		cmd.Long = "Stream a completion. The prompt is read from stdin when no argument is given."
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.model, "model", "m", "", "model identifier or alias")
	flags.StringVarP(&f.system, "system", "s", "", "system prompt")
	flags.StringVar(&f.schema, "schema", "", "JSON or YAML file with the JSON schema of the output")
	flags.BoolVar(&f.structured, "structured", false, "ask the vendor to enforce the schema natively")
	flags.Float64VarP(&f.temperature, "temperature", "t", 0, "sampling temperature")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "maximum number of output tokens")
	flags.StringSliceVarP(&f.files, "file", "f", nil, "file to attach to the prompt, repeatable")
	flags.BoolVar(&f.markdown, "markdown", false, "render text output as markdown")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runComplete(cmd *cobra.Command, a *app, f *completeFlags, args []string, stream bool) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	conv, err := f.conversation(prompt)
	if err != nil {
		return err
	}

	reg, err := a.registry(ctx)
	if err != nil {
		return err
	}
	p, model, err := reg.ForModel(f.model)
	if err != nil {
		return err
	}

	var opts []provider.Option
	if cmd.Flags().Changed("temperature") {
		opts = append(opts, provider.Temperature(f.temperature))
	}
	if f.maxTokens > 0 {
		opts = append(opts, provider.MaxTokens(f.maxTokens))
	}
	output := provider.OutputFactory(provider.TextOutput)
	if f.schema != "" {
		schema, err := readSchema(f.schema)
		if err != nil {
			return err
		}
		if f.structured {
			opts = append(opts, provider.StructuredSchema(schema))
		} else {
			opts = append(opts, provider.OutputSchema(schema))
		}
		if output, err = provider.SchemaOutput(schema); err != nil {
			return err
		}
	}
	options, err := provider.NewOptions(model, opts...)
	if err != nil {
		return err
	}

	r := newRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), f.markdown)
	call := provider.NewCall()
	slog.DebugContext(ctx, "running completion", slogx.Provider(p.Name()), slogx.Model(model), slog.Bool("stream", stream))

	if stream && !p.IsStreamable(model, options.EnabledTools) {
		slog.WarnContext(ctx, "model does not stream, falling back to a single completion", slogx.Model(model))
		stream = false
	}
	if !stream {
		out, err := p.Complete(ctx, call, conv, options, output)
		if err != nil {
			return err
		}
		if err := r.output(out); err != nil {
			return err
		}
		if rc := call.LastCompletion(); rc != nil {
			r.usage(&rc.Usage)
		}
		return nil
	}

	events, err := p.Stream(ctx, call, conv, options, output, provider.PassthroughPartial)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev := ev.(type) {
		case provider.Chunk:
			r.partial(ev.Output)
		case provider.Final:
			if err := r.final(ev.Output); err != nil {
				return err
			}
			r.usage(ev.Usage)
		case provider.Failure:
			r.abort()
			return ev.Err
		}
	}
	return nil
}

func (f *completeFlags) conversation(prompt string) ([]messages.Message, error) {
	parts := []messages.Part{messages.Text(prompt)}
	for _, name := range f.files {
		file, err := readFile(name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, file)
	}

	var conv []messages.Message
	if f.system != "" {
		conv = append(conv, messages.System(f.system))
	}
	return append(conv, messages.User(parts...)), nil
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", fmt.Errorf("a prompt is required")
	}
	return prompt, nil
}

func readFile(name string) (messages.File, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return messages.File{}, fmt.Errorf("reading attachment: %w", err)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	if i := strings.IndexByte(ct, ';'); i > 0 {
		ct = ct[:i]
	}
	return messages.InlineFile(ct, data), nil
}

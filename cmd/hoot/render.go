package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/casualjim/hoot/pkg/stdx"
	"github.com/casualjim/hoot/provider"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// renderer prints outputs to out and diagnostics such as usage to diag.
type renderer struct {
	out      io.Writer
	diag     io.Writer
	markdown bool

	// streamed is the text already written by partial.
	streamed string
}

func newRenderer(out, diag io.Writer, markdown bool) *renderer {
	return &renderer{out: out, diag: diag, markdown: markdown}
}

func (r *renderer) output(out *provider.StructuredOutput) error {
	for _, step := range out.ReasoningSteps {
		fmt.Fprintln(r.diag, color.New(color.Faint).Sprint(step))
	}
	if err := r.value(out.Output); err != nil {
		return err
	}
	r.toolCalls(out)
	return nil
}

func (r *renderer) value(v any) error {
	s, ok := v.(string)
	if !ok {
		printer := pp.New()
		printer.SetOutput(r.out)
		printer.SetColoringEnabled(!color.NoColor)
		_, err := printer.Println(v)
		return err
	}
	if r.markdown {
		glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return err
		}
		rendered, err := glam.Render(s)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(r.out, rendered)
		return err
	}
	_, err := fmt.Fprintln(r.out, s)
	return err
}

func (r *renderer) toolCalls(out *provider.StructuredOutput) {
	for _, tc := range out.ToolCalls {
		fmt.Fprintf(r.out, "%s %s\n", color.YellowString(tc.ToolName), tc.ArgumentsJSON())
	}
}

// partial prints the text that was added since the previous chunk. Structured
// partials are not printed, the final value is.
func (r *renderer) partial(out provider.StructuredOutput) {
	s, ok := out.Output.(string)
	if !ok || !strings.HasPrefix(s, r.streamed) {
		return
	}
	fmt.Fprint(r.out, s[len(r.streamed):])
	r.streamed = s
}

func (r *renderer) final(out provider.StructuredOutput) error {
	s, ok := out.Output.(string)
	if !ok || r.streamed == "" || !strings.HasPrefix(s, r.streamed) {
		r.abort()
		return r.output(&out)
	}
	fmt.Fprintln(r.out, s[len(r.streamed):])
	r.streamed = ""
	r.toolCalls(&out)
	return nil
}

// abort terminates a partially streamed line.
func (r *renderer) abort() {
	if r.streamed != "" {
		fmt.Fprintln(r.out)
		r.streamed = ""
	}
}

func (r *renderer) usage(u *provider.Usage) {
	if u == nil {
		return
	}
	cost := "unknown"
	if total := u.TotalCostUSD(); total != nil {
		cost = fmt.Sprintf("$%.6f", *total)
	}
	line := fmt.Sprintf("tokens: %s prompt, %s completion, cost: %s",
		count(u.PromptTokenCount), count(u.CompletionTokenCount), cost)
	if u.ReasoningTokenCount != nil {
		line += fmt.Sprintf(" (%s reasoning)", count(u.ReasoningTokenCount))
	}
	fmt.Fprintln(r.diag, color.HiBlackString(line))
}

func count(v *float64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%.0f", stdx.Deref(v, 0))
}

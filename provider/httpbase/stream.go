package httpbase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/casualjim/hoot/internal/httpx"
	"github.com/casualjim/hoot/internal/jsonstream"
	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/thinktag"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/pkg/uuidx"
	"github.com/casualjim/hoot/provider"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Stream runs a streaming completion. Partial outputs are JSON-aggregated
// when options ask for a schema, otherwise they are the text received so far.
func (b *Base[Req, Resp]) Stream(ctx context.Context, call *provider.Call, conv []messages.Message, options provider.Options, output provider.OutputFactory, partial provider.PartialOutputFactory) (<-chan provider.StreamEvent, error) {
	if call == nil {
		call = provider.NewCall()
	}
	if output == nil {
		output = provider.JSONOutput
	}
	if partial == nil {
		partial = provider.PassthroughPartial
	}

	body, err := b.encode(ctx, conv, options, true)
	if err != nil {
		return nil, err
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		b.runStream(ctx, call, uuidx.New(), conv, options, body, output, partial, events)
	}()
	return events, nil
}

func (b *Base[Req, Resp]) runStream(ctx context.Context, call *provider.Call, runID uuid.UUID, conv []messages.Message, options provider.Options, body []byte, output provider.OutputFactory, partial provider.PartialOutputFactory, events chan<- provider.StreamEvent) {
	started := strfmt.DateTime(time.Now())
	jsonMode := options.StructuredGeneration || len(options.OutputSchema) > 0
	thinkTags := false
	if tt, ok := b.adapter.(ThinkTagger); ok {
		thinkTags = tt.UsesThinkTags(options.Model)
	}

	var (
		yielded bool
		final   *provider.StructuredOutput
		usage   *provider.Usage
	)

	err := b.withRetry(ctx, call, options.Model, true, func(ctx context.Context, ep Endpoint, rc *provider.RawCompletion) error {
		r, err := b.post(ctx, ep, options, body, true)
		if err != nil {
			return err
		}
		respBody := httpx.IdleTimeout(r.Body, b.idleTimeout)
		defer respBody.Close()
		stop := context.AfterFunc(ctx, func() { _ = respBody.Close() })
		defer stop()

		st := newStreamState(jsonMode, thinkTags)
		frames := b.adapter.NewFrameReader(respBody)

		// finish reasons such as max tokens arrive before the usage frame, so
		// they are held until the stream ends
		var held *provider.Error

	frameLoop:
		for {
			payload, err := frames.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return classifyTransport(err, phaseBody)
			}

			delta, err := b.adapter.ExtractStreamDelta(payload, rc, st.buf)
			switch {
			case err != nil:
				pe := asProviderError(err)
				if !heldUntilEnd(pe.Kind) {
					return pe
				}
				if held == nil {
					held = pe
					if delta != nil {
						st.apply(*delta)
					}
				}
				continue
			case delta == nil:
				break frameLoop
			case held != nil:
				continue
			}

			if !st.apply(*delta) {
				continue
			}
			value, err := partial(st.value)
			if err != nil {
				slog.DebugContext(ctx, "partial output rejected", slogx.Provider(b.adapter.Name()), slogx.Error(err))
				continue
			}
			chunk := provider.Chunk{RunID: runID, Output: st.snapshot(value), Timestamp: strfmt.DateTime(time.Now())}
			select {
			case events <- chunk:
				yielded = true
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		st.flush()
		content := st.content.String()
		rc.Response = content

		u := rc.Usage.Clone()
		pricing.Finalize(ctx, b.adapter, u, pricing.Input{
			Model:      options.Model,
			Messages:   conv,
			Completion: content,
			Seed:       options.SeedUsage,
		})
		if held != nil {
			dropUnbilledCost(u, held)
		}
		rc.Usage = *u
		usage = u

		if held != nil {
			return held
		}

		rest, err := st.buf.CompleteAll()
		if err != nil {
			return provider.NewError(provider.KindUnknownProvider, "incomplete tool call in stream", provider.WithCause(err))
		}
		st.calls = append(st.calls, rest...)

		out, err := b.buildOutput(content, st.reasoning.String(), st.calls, output)
		if err != nil {
			return err
		}
		final = out
		return nil
	}, func() bool { return !yielded })

	if err != nil {
		failure := provider.Failure{RunID: runID, Err: err, Timestamp: strfmt.DateTime(time.Now())}
		select {
		case events <- failure:
		case <-ctx.Done():
			select {
			case events <- failure:
			default:
			}
		}
		b.publish(ctx, call, runID, options, true, nil, usage, err, started)
		return
	}

	select {
	case events <- provider.Final{RunID: runID, Output: *final, Usage: usage, Timestamp: strfmt.DateTime(time.Now())}:
	case <-ctx.Done():
	}
	b.publish(ctx, call, runID, options, true, final, usage, nil, started)
}

func heldUntilEnd(kind provider.Kind) bool {
	return kind == provider.KindMaxTokensExceeded || kind == provider.KindContentModeration
}

// streamState is the aggregate of one attempt.
type streamState struct {
	jsonMode  bool
	think     *thinktag.Splitter
	buf       *toolcall.Buffer
	agg       jsonstream.Aggregator
	content   strings.Builder
	reasoning strings.Builder
	calls     []messages.ToolCallRequest
	value     any
}

func newStreamState(jsonMode, thinkTags bool) *streamState {
	st := &streamState{jsonMode: jsonMode, buf: toolcall.NewBuffer()}
	if thinkTags {
		st.think = &thinktag.Splitter{}
	}
	return st
}

// apply folds a delta into the aggregate and reports whether anything visible changed.
func (s *streamState) apply(delta provider.ParsedResponse) bool {
	content, reasoning := delta.Content, delta.Reasoning
	if s.think != nil && content != "" {
		c, r := s.think.Write(content)
		content, reasoning = c, reasoning+r
	}

	changed := false
	if content != "" {
		s.content.WriteString(content)
		if s.jsonMode {
			if v, ok := s.agg.Write(content); ok {
				s.value = v
				changed = true
			}
		} else {
			s.value = s.content.String()
			changed = true
		}
	}
	if reasoning != "" {
		s.reasoning.WriteString(reasoning)
		changed = true
	}
	if len(delta.ToolCalls) > 0 {
		s.calls = append(s.calls, delta.ToolCalls...)
		changed = true
	}
	return changed
}

func (s *streamState) flush() {
	if s.think == nil {
		return
	}
	c, r := s.think.Flush()
	s.content.WriteString(c)
	s.reasoning.WriteString(r)
}

func (s *streamState) snapshot(value any) provider.StructuredOutput {
	out := provider.StructuredOutput{Output: value, ToolCalls: slices.Clone(s.calls)}
	if s.reasoning.Len() > 0 {
		out.ReasoningSteps = []string{s.reasoning.String()}
	}
	return out
}

package httpbase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/casualjim/hoot/internal/httpx"
	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/runlog"
	"github.com/casualjim/hoot/internal/thinktag"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/pkg/uuidx"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Settings tune the driver. The zero value is usable.
type Settings struct {
	Client *http.Client
	// MaxAttempts defaults to DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is the pause between transient retries.
	Backoff time.Duration
	// StreamIdleTimeout fails a stream that stays silent for longer.
	StreamIdleTimeout time.Duration
	// SharedConfig marks credentials shared by every tenant, which makes
	// a missing model worth alerting on.
	SharedConfig bool
	// Runs receives a record of every finished call.
	Runs runlog.Publisher
}

// Base implements provider.Provider on top of an Adapter.
type Base[Req, Resp any] struct {
	adapter      Adapter[Req, Resp]
	client       *http.Client
	maxAttempts  int
	backoff      time.Duration
	idleTimeout  time.Duration
	sharedConfig bool
	runs         runlog.Publisher
}

var _ provider.Provider = (*Base[struct{}, struct{}])(nil)

// New creates the driver for adapter.
func New[Req, Resp any](adapter Adapter[Req, Resp], settings Settings) *Base[Req, Resp] {
	b := &Base[Req, Resp]{
		adapter:      adapter,
		client:       settings.Client,
		maxAttempts:  settings.MaxAttempts,
		backoff:      settings.Backoff,
		idleTimeout:  settings.StreamIdleTimeout,
		sharedConfig: settings.SharedConfig,
		runs:         settings.Runs,
	}
	if b.client == nil {
		b.client = httpx.NewClient(httpx.Timeouts{})
	}
	if b.maxAttempts <= 0 {
		b.maxAttempts = DefaultMaxAttempts
	}
	if b.idleTimeout <= 0 {
		b.idleTimeout = httpx.DefaultStreamIdleTimeout
	}
	return b
}

func (b *Base[Req, Resp]) Name() provider.Name { return b.adapter.Name() }

func (b *Base[Req, Resp]) RequiredEnvVars() []string { return b.adapter.RequiredEnvVars() }

func (b *Base[Req, Resp]) SupportsModel(model string) bool { return b.adapter.SupportsModel(model) }

func (b *Base[Req, Resp]) IsStreamable(model string, tools *tool.Set) bool {
	return b.adapter.IsStreamable(model, tools)
}

func (b *Base[Req, Resp]) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return b.adapter.StandardizeMessages(raw)
}

func (b *Base[Req, Resp]) encode(ctx context.Context, conv []messages.Message, options provider.Options, stream bool) ([]byte, error) {
	req, err := b.adapter.BuildRequest(ctx, conv, options, stream)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", b.adapter.Name(), err)
	}
	return body, nil
}

// post sends one attempt. Non-2xx responses are classified and returned as errors.
func (b *Base[Req, Resp]) post(ctx context.Context, ep Endpoint, options provider.Options, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, provider.NewError(provider.KindBadRequest, "creating request", provider.WithCause(err))
	}
	headers, err := b.adapter.RequestHeaders(ctx, options)
	if err != nil {
		return nil, provider.NewError(provider.KindProviderUnavailable, "building request headers", provider.WithCause(err))
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if stream && req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err, phaseConnect)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data := httpx.ReadErrorBody(resp.Body)
		return nil, b.statusError(resp.StatusCode, resp.Header, data)
	}
	return resp, nil
}

func (b *Base[Req, Resp]) statusError(status int, header http.Header, body []byte) *provider.Error {
	pe := b.adapter.HandleErrorStatusCode(status, header, body)
	if pe == nil {
		return StatusError(status, body)
	}
	if pe.StatusCode == 0 {
		pe.StatusCode = status
	}
	if pe.RawPayload == "" {
		pe.RawPayload = string(body)
	}
	return pe
}

// Complete runs a non-streaming completion.
func (b *Base[Req, Resp]) Complete(ctx context.Context, call *provider.Call, conv []messages.Message, options provider.Options, output provider.OutputFactory) (*provider.StructuredOutput, error) {
	if call == nil {
		call = provider.NewCall()
	}
	started := strfmt.DateTime(time.Now())
	runID := uuidx.New()

	body, err := b.encode(ctx, conv, options, false)
	if err != nil {
		return nil, err
	}

	var (
		resp Resp
		last *provider.RawCompletion
	)
	err = b.withRetry(ctx, call, options.Model, false, func(ctx context.Context, ep Endpoint, rc *provider.RawCompletion) error {
		last = rc
		r, err := b.post(ctx, ep, options, body, false)
		if err != nil {
			return err
		}
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			return classifyTransport(err, phaseBody)
		}
		var v Resp
		if err := json.Unmarshal(data, &v); err != nil {
			return decodeError(err, data)
		}
		resp = v
		return nil
	}, func() bool { return true })
	if err != nil {
		b.publish(ctx, call, runID, options, false, nil, nil, err, started)
		return nil, err
	}

	out, usage, err := b.finishComplete(ctx, conv, options, output, &resp, last)
	if err != nil {
		if pe, ok := provider.AsError(err); ok {
			pe.WithProvider(b.adapter.Name(), options.Model, last.Region)
			last.Error = pe
		}
	}
	b.publish(ctx, call, runID, options, false, out, usage, err, started)
	return out, err
}

func (b *Base[Req, Resp]) finishComplete(ctx context.Context, conv []messages.Message, options provider.Options, output provider.OutputFactory, resp *Resp, rc *provider.RawCompletion) (*provider.StructuredOutput, *provider.Usage, error) {
	usage := &provider.Usage{}
	if u := b.adapter.ExtractUsage(resp); u != nil {
		usage = u
	}

	content, contentErr := b.adapter.ExtractContent(resp)

	var reasoning string
	if re, ok := b.adapter.(ReasoningExtractor[Resp]); ok {
		reasoning = re.ExtractReasoning(resp)
	}
	if tt, ok := b.adapter.(ThinkTagger); ok && tt.UsesThinkTags(options.Model) {
		c, r := thinktag.Split(content)
		content, reasoning = c, reasoning+r
	}

	rc.Response = content
	pricing.Finalize(ctx, b.adapter, usage, pricing.Input{
		Model:      options.Model,
		Messages:   conv,
		Completion: content,
		Seed:       options.SeedUsage,
	})
	dropUnbilledCost(usage, contentErr)
	rc.Usage = *usage

	if contentErr != nil {
		return nil, usage, contentErr
	}

	toolCalls, err := b.adapter.ExtractNativeToolCalls(resp)
	if err != nil {
		return nil, usage, err
	}

	out, err := b.buildOutput(content, reasoning, toolCalls, output)
	return out, usage, err
}

// dropUnbilledCost makes the cost unknown when err ended the attempt without
// a billable completion. Counts are kept for diagnostics.
func dropUnbilledCost(usage *provider.Usage, err error) {
	if pe, ok := provider.AsError(err); ok && !pe.StoreTaskRun {
		usage.ForceUnknownCost()
	}
}

// buildOutput applies the strict output factory. A turn with tool calls is
// valid even when its content does not validate.
func (b *Base[Req, Resp]) buildOutput(content, reasoning string, toolCalls []messages.ToolCallRequest, output provider.OutputFactory) (*provider.StructuredOutput, error) {
	out := &provider.StructuredOutput{ToolCalls: toolCalls}
	if reasoning != "" {
		out.ReasoningSteps = []string{reasoning}
	}

	if output == nil {
		output = provider.JSONOutput
	}
	v, err := output(content)
	if err != nil {
		if len(toolCalls) > 0 {
			out.Output = map[string]any{}
			return out, nil
		}
		if _, ok := provider.AsError(err); !ok {
			err = provider.NewError(provider.KindJSONSchemaValidation, err.Error(), provider.WithCause(err), provider.WithRaw([]byte(content)))
		}
		return nil, err
	}
	out.Output = v
	return out, nil
}

func (b *Base[Req, Resp]) publish(ctx context.Context, call *provider.Call, runID uuid.UUID, options provider.Options, stream bool, out *provider.StructuredOutput, usage *provider.Usage, err error, started strfmt.DateTime) {
	attrs := []any{slogx.Provider(b.adapter.Name()), slogx.Model(options.Model), slog.String("run_id", runID.String()), slog.Bool("stream", stream)}
	if err != nil {
		slog.DebugContext(ctx, "completion failed", append(attrs, slogx.Error(err))...)
	} else {
		slog.DebugContext(ctx, "completion finished", attrs...)
	}

	if b.runs == nil {
		return
	}
	rec := runlog.Record{
		RunID:       runID,
		Provider:    b.adapter.Name(),
		Model:       options.Model,
		Stream:      stream,
		Output:      out,
		Usage:       usage,
		Completions: call.Completions(),
		Metadata:    options.Metadata,
		StartedAt:   started,
		FinishedAt:  strfmt.DateTime(time.Now()),
	}
	if err != nil {
		rec.Error = asProviderError(err)
	}
	if perr := b.runs.Publish(ctx, rec); perr != nil {
		slog.WarnContext(ctx, "failed to publish run record", slogx.Error(perr))
	}
}

// CheckValid asks the probe model for an empty JSON object.
func (b *Base[Req, Resp]) CheckValid(ctx context.Context) bool {
	options, err := provider.NewOptions(b.adapter.ProbeModel(), provider.Temperature(0))
	if err != nil {
		return false
	}
	conv := []messages.Message{
		messages.System("Reply with an empty JSON object."),
		messages.UserText("{}"),
	}
	_, err = b.Complete(ctx, provider.NewCall(), conv, options, provider.JSONOutput)
	if err != nil {
		slog.WarnContext(ctx, "provider check failed", slogx.Provider(b.adapter.Name()), slogx.Error(err))
	}
	return err == nil
}

// IsSchemaSupportedForStructuredGeneration sends a small structured
// generation request with schema. Any failure means "not supported".
func (b *Base[Req, Resp]) IsSchemaSupportedForStructuredGeneration(ctx context.Context, taskName, model string, schema map[string]any) bool {
	options, err := provider.NewOptions(model, provider.TaskName(taskName), provider.StructuredSchema(schema), provider.Temperature(0))
	if err != nil {
		return false
	}
	conv := []messages.Message{
		messages.System("Generate an example output."),
		messages.UserText("Generate an example output."),
	}
	_, err = b.Complete(ctx, provider.NewCall(), conv, options, provider.TextOutput)
	if err != nil {
		slog.DebugContext(ctx, "schema not supported", slogx.Provider(b.adapter.Name()), slogx.Model(model), slogx.Error(err))
	}
	return err == nil
}

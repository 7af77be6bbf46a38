// Package bedrock serves foundation models through the Amazon Bedrock Converse API.
//
// Requests authenticate with a Bedrock API key sent as a bearer token.
// Streams use the AWS event-stream binary framing.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/casualjim/hoot/tool"
	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
)

const (
	// DefaultEndpoint is the runtime API root, {region} is replaced by the picked region.
	DefaultEndpoint = "https://bedrock-runtime.{region}.amazonaws.com"
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"

	EnvAPIKey  = "AWS_BEARER_TOKEN_BEDROCK"
	EnvRegions = "AWS_BEDROCK_REGIONS"
)

// Well known model identifiers.
const (
	Claude37Sonnet = "anthropic.claude-3-7-sonnet-20250219-v1:0"
	Claude35Sonnet = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	Claude35Haiku  = "anthropic.claude-3-5-haiku-20241022-v1:0"
	NovaPro        = "amazon.nova-pro-v1:0"
	NovaLite       = "amazon.nova-lite-v1:0"
	NovaMicro      = "amazon.nova-micro-v1:0"
	Llama31_70B    = "meta.llama3-1-70b-instruct-v1:0"
	Llama33_70B    = "meta.llama3-3-70b-instruct-v1:0"
	MistralLarge   = "mistral.mistral-large-2407-v1:0"
)

// Models lists the models the package knows by name.
func Models() []string {
	return []string{Claude37Sonnet, Claude35Sonnet, Claude35Haiku, NovaPro, NovaLite, NovaMicro, Llama31_70B, Llama33_70B, MistralLarge}
}

var modelVendors = []string{"anthropic.", "amazon.", "meta.", "mistral.", "cohere.", "ai21.", "deepseek.", "writer."}

var profilePrefixes = []string{"us.", "eu.", "apac.", "us-gov.", "global."}

// BaseModel strips the cross-region inference profile prefix of model,
// "us.anthropic.claude-3-5-haiku-20241022-v1:0" is priced as the base model.
func BaseModel(model string) string {
	for _, p := range profilePrefixes {
		if rest, ok := strings.CutPrefix(model, p); ok {
			return rest
		}
	}
	return model
}

// Config holds the API key, regions and endpoint.
type Config struct {
	APIKey  string   `mapstructure:"api_key"`
	Regions []string `mapstructure:"regions"`
	// Endpoint is a URL template, {region} is replaced by the region of the attempt.
	Endpoint string `mapstructure:"endpoint"`
}

// ConfigFromEnv reads the configuration from the environment.
// AWS_BEDROCK_REGIONS is a comma separated list.
func ConfigFromEnv() (Config, error) {
	cfg := Config{APIKey: os.Getenv(EnvAPIKey)}
	for _, r := range strings.Split(os.Getenv(EnvRegions), ",") {
		if r = strings.TrimSpace(r); r != "" {
			cfg.Regions = append(cfg.Regions, r)
		}
	}
	if cfg.APIKey == "" {
		return cfg, errors.New(EnvAPIKey + " is not set")
	}
	return cfg, nil
}

// Provider is the Bedrock provider.
type Provider = httpbase.Base[Request, Response]

// New creates the provider.
func New(cfg Config, settings httpbase.Settings) *Provider {
	return httpbase.New(NewAdapter(cfg), settings)
}

// FromEnv creates the provider from the environment.
func FromEnv(settings httpbase.Settings) (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg, settings), nil
}

// Adapter is the Bedrock side of the driver.
type Adapter struct {
	pricing.Heuristic

	cfg  Config
	pick httpbase.Picker
}

var _ httpbase.Adapter[Request, Response] = (*Adapter)(nil)

var _ httpbase.ReasoningExtractor[Response] = (*Adapter)(nil)

// NewAdapter creates the adapter. Empty regions mean DefaultRegion.
func NewAdapter(cfg Config) *Adapter {
	if len(cfg.Regions) == 0 {
		cfg.Regions = []string{DefaultRegion}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Adapter{
		Heuristic: pricing.Heuristic{Provider: provider.Bedrock},
		cfg:       cfg,
	}
}

func (a *Adapter) Name() provider.Name { return provider.Bedrock }

func (a *Adapter) RequiredEnvVars() []string { return []string{EnvAPIKey} }

func (a *Adapter) SupportsModel(model string) bool {
	base := BaseModel(model)
	for _, v := range modelVendors {
		if strings.HasPrefix(base, v) {
			return true
		}
	}
	return false
}

// IsStreamable is false for Llama and Mistral models when tools are enabled,
// ConverseStream does not support tool use for them.
func (a *Adapter) IsStreamable(model string, tools *tool.Set) bool {
	if tools.Len() == 0 {
		return true
	}
	base := BaseModel(model)
	return !strings.HasPrefix(base, "meta.") && !strings.HasPrefix(base, "mistral.")
}

func (a *Adapter) ProbeModel() string { return NovaMicro }

// CompletionCost prices usage under the base model of an inference profile.
func (a *Adapter) CompletionCost(model string, usage *provider.Usage) error {
	return a.Heuristic.CompletionCost(BaseModel(model), usage)
}

func (a *Adapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, _ bool) (Request, error) {
	system, msgs, err := convertMessages(conv)
	if err != nil {
		return Request{}, err
	}
	tools, err := convertTools(options.EnabledTools)
	if err != nil {
		return Request{}, err
	}
	if len(options.OutputSchema) > 0 {
		instruction, err := schemaInstruction(options.OutputSchema)
		if err != nil {
			return Request{}, err
		}
		system = append(system, SystemBlock{Text: instruction})
	}

	req := Request{
		Messages:   msgs,
		System:     system,
		ToolConfig: tools,
	}
	if options.MaxTokens != nil || options.Temperature != nil {
		req.InferenceConfig = &InferenceConfig{MaxTokens: options.MaxTokens, Temperature: options.Temperature}
	}
	return req, nil
}

// RequestURL picks a region the call has not excluded yet.
func (a *Adapter) RequestURL(call *provider.Call, model string, stream bool) (httpbase.Endpoint, error) {
	region, err := httpbase.PickRegion(call, a.cfg.Regions, a.pick)
	if err != nil {
		return httpbase.Endpoint{}, err
	}
	action := "converse"
	if stream {
		action = "converse-stream"
	}
	root := strings.ReplaceAll(a.cfg.Endpoint, "{region}", region)
	return httpbase.Endpoint{
		URL:    fmt.Sprintf("%s/model/%s/%s", root, url.PathEscape(model), action),
		Region: region,
	}, nil
}

func (a *Adapter) RequestHeaders(context.Context, provider.Options) (http.Header, error) {
	if a.cfg.APIKey == "" {
		return nil, errors.New("missing api key")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.APIKey)
	h.Set("Accept", "application/vnd.amazon.eventstream, application/json")
	return h, nil
}

func (a *Adapter) ExtractContent(resp *Response) (string, error) {
	if resp.Output == nil || resp.Output.Message == nil {
		return "", provider.NewError(provider.KindUnknownProvider, "response has no output message")
	}
	var sb strings.Builder
	for _, b := range resp.Output.Message.Content {
		sb.WriteString(b.Text)
	}
	return sb.String(), stopError(resp.StopReason)
}

func (a *Adapter) ExtractReasoning(resp *Response) string {
	if resp.Output == nil || resp.Output.Message == nil {
		return ""
	}
	var steps []string
	for _, b := range resp.Output.Message.Content {
		if b.ReasoningContent != nil && b.ReasoningContent.ReasoningText != nil && b.ReasoningContent.ReasoningText.Text != "" {
			steps = append(steps, b.ReasoningContent.ReasoningText.Text)
		}
	}
	return strings.Join(steps, "\n")
}

func (a *Adapter) ExtractUsage(resp *Response) *provider.Usage {
	return convertUsage(resp.Usage)
}

// convertUsage maps the usage counters, cache reads and writes are prompt tokens.
func convertUsage(u *Usage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		PromptTokenCount:       swag.Float64(u.InputTokens + u.CacheReadInputTokens + u.CacheWriteInputTokens),
		PromptTokenCountCached: swag.Float64(u.CacheReadInputTokens),
		CompletionTokenCount:   swag.Float64(u.OutputTokens),
	}
}

func (a *Adapter) ExtractNativeToolCalls(resp *Response) ([]messages.ToolCallRequest, error) {
	if resp.Output == nil || resp.Output.Message == nil {
		return nil, nil
	}
	buf := toolcall.NewBuffer()
	for i, b := range resp.Output.Message.Content {
		if b.ToolUse == nil {
			continue
		}
		if err := buf.Start(i, b.ToolUse.ToolUseID, b.ToolUse.Name); err != nil {
			return nil, err
		}
		if err := buf.Append(i, string(b.ToolUse.Input)); err != nil {
			return nil, err
		}
	}
	calls, err := buf.CompleteAll()
	if err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool input", provider.WithCause(err))
	}
	return calls, nil
}

func (a *Adapter) NewFrameReader(body io.Reader) httpbase.FrameReader {
	return newEventFrames(body)
}

// ExtractStreamDelta handles one event. The metadata event closes the
// stream, it follows messageStop and carries the usage.
func (a *Adapter) ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "decoding stream event", provider.WithCause(err), provider.WithRaw(payload))
	}

	delta := &provider.ParsedResponse{}
	switch {
	case ev.Exception != nil:
		pe := classify(ev.Exception.Type, ev.Exception.Message)
		pe.RawPayload = string(payload)
		return nil, pe

	case ev.ContentBlockStart != nil:
		index, err := blockIndex(ev.ContentBlockStart.ContentBlockIndex, "contentBlockStart")
		if err != nil {
			return nil, err
		}
		if tu := ev.ContentBlockStart.Start.ToolUse; tu != nil {
			if err := buf.Start(index, tu.ToolUseID, tu.Name); err != nil {
				return nil, err
			}
		}

	case ev.ContentBlockDelta != nil:
		index, err := blockIndex(ev.ContentBlockDelta.ContentBlockIndex, "contentBlockDelta")
		if err != nil {
			return nil, err
		}
		d := ev.ContentBlockDelta.Delta
		switch {
		case d.ToolUse != nil:
			if err := buf.Append(index, d.ToolUse.Input); err != nil {
				return nil, err
			}
		case d.ReasoningContent != nil:
			delta.Reasoning = d.ReasoningContent.Text
		default:
			delta.Content = d.Text
		}

	case ev.ContentBlockStop != nil:
		idx, err := blockIndex(ev.ContentBlockStop.ContentBlockIndex, "contentBlockStop")
		if err != nil {
			return nil, err
		}
		if !buf.Has(idx) {
			break
		}
		call, err := buf.Complete(idx)
		if err != nil {
			return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool input", provider.WithCause(err), provider.WithRaw(payload))
		}
		delta.ToolCalls = []messages.ToolCallRequest{call}

	case ev.MessageStop != nil:
		if err := stopError(ev.MessageStop.StopReason); err != nil {
			return nil, err
		}

	case ev.Metadata != nil:
		if u := convertUsage(ev.Metadata.Usage); u != nil {
			raw.Usage = *u
		}
		return nil, nil
	}
	return delta, nil
}

func blockIndex(index *int, event string) (int, error) {
	if index == nil {
		return 0, fmt.Errorf("%w: %s event", toolcall.ErrMissingIndex, event)
	}
	return *index, nil
}

func stopError(reason string) error {
	switch reason {
	case StopMaxTokens:
		return provider.NewError(provider.KindMaxTokensExceeded, "model reached its maximum number of output tokens")
	case StopGuardrail, StopContentFilter:
		return provider.NewError(provider.KindContentModeration, "generation stopped: "+reason)
	}
	return nil
}

// HandleErrorStatusCode classifies by the x-amzn-ErrorType header, which
// names the exception ("ThrottlingException:http://internal.amazon.com/...").
func (a *Adapter) HandleErrorStatusCode(status int, header http.Header, body []byte) *provider.Error {
	typ, _, _ := strings.Cut(header.Get("X-Amzn-Errortype"), ":")
	if typ == "" {
		return nil
	}
	pe := classify(typ, httpbase.ErrorMessage(body))
	if pe.Kind == provider.KindUnknownProvider {
		return nil
	}
	return pe
}

// classify maps a Bedrock exception name to a kind. Unknown exceptions are
// KindUnknownProvider so callers can fall back to the status code.
func classify(exception, message string) *provider.Error {
	msg := strings.ToLower(message)
	name := strings.TrimSuffix(exception, "Exception")
	if name != "" {
		name = strings.ToLower(name[:1]) + name[1:]
	}

	var kind provider.Kind
	switch name {
	case "throttling", "serviceQuotaExceeded":
		kind = provider.KindRateLimited
	case "accessDenied", "unrecognizedClient":
		kind = provider.KindProviderUnavailable
	case "modelNotReady", "serviceUnavailable":
		return provider.NewError(provider.KindProviderUnavailable, message, provider.WithFailover())
	case "resourceNotFound":
		kind = provider.KindMissingModel
	case "modelTimeout":
		kind = provider.KindReadTimeout
	case "internalServer", "modelError", "modelStreamError":
		kind = provider.KindProviderInternal
	case "validation":
		switch {
		case strings.Contains(msg, "doesn't support") || strings.Contains(msg, "does not support"):
			kind = provider.KindModelDoesNotSupportMode
		case strings.Contains(msg, "too large") || strings.Contains(msg, "exceeds"):
			kind = provider.KindFileTooLarge
		case strings.Contains(msg, "image") || strings.Contains(msg, "document"):
			kind = provider.KindInvalidFile
		case strings.Contains(msg, "model identifier is invalid"):
			kind = provider.KindMissingModel
		default:
			kind = provider.KindBadRequest
		}
	default:
		kind = provider.KindUnknownProvider
	}
	return provider.NewError(kind, message)
}

func (a *Adapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return standardize(raw)
}

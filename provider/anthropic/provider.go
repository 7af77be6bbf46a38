// Package anthropic serves Claude models through the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
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
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.anthropic.com/v1"
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	EnvAPIKey = "ANTHROPIC_API_KEY"
)

// Well known model identifiers.
const (
	Claude35Haiku  = "claude-3-5-haiku-latest"
	Claude35Sonnet = "claude-3-5-sonnet-latest"
	Claude37Sonnet = "claude-3-7-sonnet-latest"
	ClaudeSonnet4  = "claude-sonnet-4-0"
	ClaudeOpus4    = "claude-opus-4-0"
	Claude3Opus    = "claude-3-opus-latest"
)

// Models lists the models the package knows by name.
func Models() []string {
	return []string{Claude35Haiku, Claude35Sonnet, Claude37Sonnet, ClaudeSonnet4, ClaudeOpus4, Claude3Opus}
}

// Config holds the credentials and endpoint.
type Config struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ConfigFromEnv reads the configuration from the environment.
func ConfigFromEnv() (Config, error) {
	cfg := Config{APIKey: os.Getenv(EnvAPIKey)}
	if cfg.APIKey == "" {
		return cfg, errors.New(EnvAPIKey + " is not set")
	}
	return cfg, nil
}

// Provider is the Anthropic provider.
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

// Adapter is the Anthropic side of the driver.
type Adapter struct {
	httpbase.SSE
	pricing.Heuristic

	cfg Config
}

var _ httpbase.Adapter[Request, Response] = (*Adapter)(nil)

var _ httpbase.ReasoningExtractor[Response] = (*Adapter)(nil)

// NewAdapter creates the adapter. An empty base URL means DefaultBaseURL.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		Heuristic: pricing.Heuristic{Provider: provider.Anthropic},
		cfg:       cfg,
	}
}

func (a *Adapter) Name() provider.Name { return provider.Anthropic }

func (a *Adapter) RequiredEnvVars() []string { return []string{EnvAPIKey} }

func (a *Adapter) SupportsModel(model string) bool { return strings.HasPrefix(model, "claude-") }

func (a *Adapter) IsStreamable(string, *tool.Set) bool { return true }

func (a *Adapter) ProbeModel() string { return Claude35Haiku }

// DefaultMaxTokens is the output budget used when options leave it unset.
// The first claude-3 generation tops out at 4096 output tokens.
func DefaultMaxTokens(model string) int {
	if strings.HasPrefix(model, "claude-3-") && !strings.HasPrefix(model, "claude-3-5") && !strings.HasPrefix(model, "claude-3-7") {
		return 4096
	}
	return 8192
}

func (a *Adapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, stream bool) (Request, error) {
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
		if system != "" {
			system += "\n\n"
		}
		system += instruction
	}

	return Request{
		Model:       options.Model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   options.MaxTokensOr(DefaultMaxTokens(options.Model)),
		Temperature: options.Temperature,
		Tools:       tools,
		Stream:      stream,
	}, nil
}

func (a *Adapter) RequestURL(_ *provider.Call, _ string, _ bool) (httpbase.Endpoint, error) {
	return httpbase.Endpoint{URL: a.cfg.BaseURL + "/messages"}, nil
}

func (a *Adapter) RequestHeaders(context.Context, provider.Options) (http.Header, error) {
	if a.cfg.APIKey == "" {
		return nil, errors.New("missing api key")
	}
	h := http.Header{}
	h.Set("x-api-key", a.cfg.APIKey)
	h.Set("anthropic-version", APIVersion)
	return h, nil
}

func (a *Adapter) ExtractContent(resp *Response) (string, error) {
	if resp.Error != nil {
		return "", classify(resp.Error)
	}
	if resp.Content == nil && resp.StopReason == "" {
		return "", provider.NewError(provider.KindUnknownProvider, "response has no content")
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == BlockText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), stopError(resp.StopReason)
}

func (a *Adapter) ExtractReasoning(resp *Response) string {
	var steps []string
	for _, b := range resp.Content {
		if b.Type == BlockThinking && b.Thinking != "" {
			steps = append(steps, b.Thinking)
		}
	}
	return strings.Join(steps, "\n")
}

func (a *Adapter) ExtractUsage(resp *Response) *provider.Usage {
	return convertUsage(resp.Usage)
}

// convertUsage maps the usage counters. Anthropic reports cache reads and
// writes apart from input_tokens, all three are prompt tokens.
func convertUsage(u *Usage) *provider.Usage {
	if u == nil {
		return nil
	}
	return &provider.Usage{
		PromptTokenCount:       swag.Float64(u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens),
		PromptTokenCountCached: swag.Float64(u.CacheReadInputTokens),
		CompletionTokenCount:   swag.Float64(u.OutputTokens),
	}
}

func (a *Adapter) ExtractNativeToolCalls(resp *Response) ([]messages.ToolCallRequest, error) {
	buf := toolcall.NewBuffer()
	for i, b := range resp.Content {
		if b.Type != BlockToolUse {
			continue
		}
		if err := buf.Start(i, b.ID, b.Name); err != nil {
			return nil, err
		}
		if err := buf.Append(i, string(b.Input)); err != nil {
			return nil, err
		}
	}
	calls, err := buf.CompleteAll()
	if err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool input", provider.WithCause(err))
	}
	return calls, nil
}

// ExtractStreamDelta handles one event. Tool input arrives as JSON fragments
// of the block at the event's index and completes with content_block_stop.
func (a *Adapter) ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	if httpbase.IsDone(payload) {
		return nil, nil
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "decoding stream event", provider.WithCause(err), provider.WithRaw(payload))
	}

	delta := &provider.ParsedResponse{}
	switch ev.Type {
	case EventMessageStart:
		if ev.Message != nil {
			if u := convertUsage(ev.Message.Usage); u != nil {
				raw.Usage = *u
			}
		}

	case EventContentBlockStart:
		index, err := blockIndex(ev)
		if err != nil {
			return nil, err
		}
		if ev.ContentBlock == nil {
			break
		}
		switch ev.ContentBlock.Type {
		case BlockToolUse:
			if err := buf.Start(index, ev.ContentBlock.ID, ev.ContentBlock.Name); err != nil {
				return nil, err
			}
		case BlockText:
			delta.Content = ev.ContentBlock.Text
		case BlockThinking:
			delta.Reasoning = ev.ContentBlock.Thinking
		}

	case EventContentBlockDelta:
		index, err := blockIndex(ev)
		if err != nil {
			return nil, err
		}
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			delta.Content = ev.Delta.Text
		case "thinking_delta":
			delta.Reasoning = ev.Delta.Thinking
		case "input_json_delta":
			if err := buf.Append(index, ev.Delta.PartialJSON); err != nil {
				return nil, err
			}
		}

	case EventContentBlockStop:
		index, err := blockIndex(ev)
		if err != nil {
			return nil, err
		}
		if !buf.Has(index) {
			break
		}
		call, err := buf.Complete(index)
		if err != nil {
			return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool input", provider.WithCause(err), provider.WithRaw(payload))
		}
		delta.ToolCalls = []messages.ToolCallRequest{call}

	case EventMessageDelta:
		if ev.Usage != nil {
			raw.Usage.CompletionTokenCount = swag.Float64(ev.Usage.OutputTokens)
		}
		if ev.Delta != nil {
			if err := stopError(ev.Delta.StopReason); err != nil {
				return nil, err
			}
		}

	case EventMessageStop:
		return nil, nil

	case EventError:
		if ev.Error == nil {
			return nil, provider.NewError(provider.KindUnknownProvider, "stream error", provider.WithRaw(payload))
		}
		pe := classify(ev.Error)
		pe.RawPayload = string(payload)
		return nil, pe
	}
	return delta, nil
}

func blockIndex(ev Event) (int, error) {
	if ev.Index == nil {
		return 0, fmt.Errorf("%w: %s event", toolcall.ErrMissingIndex, ev.Type)
	}
	return *ev.Index, nil
}

func stopError(reason string) error {
	switch reason {
	case StopMaxTokens:
		return provider.NewError(provider.KindMaxTokensExceeded, "model reached its maximum number of output tokens")
	case StopRefusal:
		return provider.NewError(provider.KindContentModeration, "model refused to answer")
	}
	return nil
}

func (a *Adapter) HandleErrorStatusCode(status int, _ http.Header, body []byte) *provider.Error {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil || resp.Error == nil {
		if status == 529 {
			return provider.NewError(provider.KindProviderUnavailable, "overloaded")
		}
		return nil
	}
	pe := classify(resp.Error)
	if pe.Kind == provider.KindUnknownProvider {
		return nil
	}
	return pe
}

// classify maps an Anthropic error type to a kind. Types without a mapping
// are KindUnknownProvider so callers can fall back to the status code.
func classify(e *APIError) *provider.Error {
	msg := strings.ToLower(e.Message)
	var kind provider.Kind
	switch e.Type {
	case "overloaded_error", "authentication_error", "permission_error":
		kind = provider.KindProviderUnavailable
	case "rate_limit_error":
		kind = provider.KindRateLimited
	case "not_found_error":
		kind = provider.KindMissingModel
	case "request_too_large":
		kind = provider.KindFileTooLarge
	case "api_error":
		kind = provider.KindProviderInternal
	case "invalid_request_error":
		switch {
		case strings.Contains(msg, "image") || strings.Contains(msg, "pdf") || strings.Contains(msg, "document"):
			kind = provider.KindInvalidFile
		case strings.Contains(msg, "does not support"):
			kind = provider.KindModelDoesNotSupportMode
		case strings.Contains(msg, "model:"):
			kind = provider.KindMissingModel
		default:
			kind = provider.KindBadRequest
		}
	default:
		kind = provider.KindUnknownProvider
	}
	return provider.NewError(kind, e.Message)
}

func (a *Adapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return standardize(raw)
}

package openai

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/casualjim/hoot/provider/openaicompat"
	"github.com/casualjim/hoot/tool"
	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	EnvAPIKey       = "OPENAI_API_KEY"
	EnvOrganization = "OPENAI_ORGANIZATION"
)

// Config holds the credentials and endpoint.
type Config struct {
	APIKey       string `mapstructure:"api_key"`
	Organization string `mapstructure:"organization"`
	BaseURL      string `mapstructure:"base_url"`
}

// ConfigFromEnv reads the configuration from the environment.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:       os.Getenv(EnvAPIKey),
		Organization: os.Getenv(EnvOrganization),
	}
	if cfg.APIKey == "" {
		return cfg, errors.New(EnvAPIKey + " is not set")
	}
	return cfg, nil
}

// Provider is the OpenAI provider.
type Provider = httpbase.Base[openaicompat.Request, openaicompat.Response]

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

// Adapter is the OpenAI side of the driver.
type Adapter struct {
	httpbase.SSE
	pricing.Heuristic

	cfg Config
}

var _ httpbase.Adapter[openaicompat.Request, openaicompat.Response] = (*Adapter)(nil)

var _ httpbase.ReasoningExtractor[openaicompat.Response] = (*Adapter)(nil)

// NewAdapter creates the adapter. An empty base URL means DefaultBaseURL.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		Heuristic: pricing.Heuristic{Provider: provider.OpenAI, MessageOverhead: 3, RequestOverhead: 3},
		cfg:       cfg,
	}
}

func (a *Adapter) Name() provider.Name { return provider.OpenAI }

func (a *Adapter) RequiredEnvVars() []string { return []string{EnvAPIKey} }

func (a *Adapter) SupportsModel(model string) bool { return isFamily(model) }

func (a *Adapter) IsStreamable(model string, _ *tool.Set) bool { return streamable(model) }

func (a *Adapter) ProbeModel() string { return GPT4oMini }

func (a *Adapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, stream bool) (openaicompat.Request, error) {
	model := options.Model
	msgs, err := openaicompat.ConvertMessages(conv, openaicompat.ConvertOptions{
		SystemAsUser: noSystemRole(model),
		Audio:        acceptsAudio(model),
		Files:        !acceptsAudio(model),
	})
	if err != nil {
		return openaicompat.Request{}, err
	}
	tools, err := openaicompat.ConvertTools(options.EnabledTools)
	if err != nil {
		return openaicompat.Request{}, err
	}

	req := openaicompat.Request{
		Model:    model,
		Messages: msgs,
		Tools:    tools,
		Stream:   stream,
	}
	if isReasoning(model) {
		req.MaxCompletionTokens = options.MaxTokens
	} else {
		req.Temperature = options.Temperature
		req.MaxTokens = options.MaxTokens
		if len(tools) > 0 {
			req.ParallelToolCalls = swag.Bool(true)
		}
	}
	if stream {
		req.StreamOptions = &openaicompat.StreamOptions{IncludeUsage: true}
	}

	switch {
	case options.StructuredGeneration && len(options.OutputSchema) > 0:
		req.ResponseFormat = openaicompat.JSONSchemaResponseFormat(options)
	case len(options.OutputSchema) > 0:
		req.ResponseFormat = &openaicompat.ResponseFormat{Type: "json_object"}
	}
	return req, nil
}

func (a *Adapter) RequestURL(_ *provider.Call, _ string, _ bool) (httpbase.Endpoint, error) {
	return httpbase.Endpoint{URL: a.cfg.BaseURL + "/chat/completions"}, nil
}

func (a *Adapter) RequestHeaders(context.Context, provider.Options) (http.Header, error) {
	if a.cfg.APIKey == "" {
		return nil, errors.New("missing api key")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.cfg.APIKey)
	if a.cfg.Organization != "" {
		h.Set("OpenAI-Organization", a.cfg.Organization)
	}
	return h, nil
}

func (a *Adapter) ExtractContent(resp *openaicompat.Response) (string, error) {
	return openaicompat.ExtractContent(resp)
}

func (a *Adapter) ExtractReasoning(resp *openaicompat.Response) string {
	return openaicompat.ExtractReasoning(resp)
}

func (a *Adapter) ExtractUsage(resp *openaicompat.Response) *provider.Usage {
	return openaicompat.ExtractUsage(resp)
}

func (a *Adapter) ExtractNativeToolCalls(resp *openaicompat.Response) ([]messages.ToolCallRequest, error) {
	return openaicompat.ExtractToolCalls(resp)
}

func (a *Adapter) ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	return openaicompat.StreamDelta(payload, raw, buf)
}

func (a *Adapter) HandleErrorStatusCode(status int, _ http.Header, body []byte) *provider.Error {
	return openaicompat.ClassifyError(status, body)
}

func (a *Adapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return openaicompat.Standardize(raw)
}

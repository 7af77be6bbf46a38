// Package fireworks serves open-weight models hosted by Fireworks AI through
// its OpenAI-compatible chat-completions API.
package fireworks

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
	json "github.com/goccy/go-json"
)

const (
	// DefaultBaseURL is the public inference API root.
	DefaultBaseURL = "https://api.fireworks.ai/inference/v1"

	EnvAPIKey = "FIREWORKS_API_KEY"

	// ModelPrefix is the namespace of the models Fireworks serves itself.
	ModelPrefix = "accounts/fireworks/models/"
)

// Well known model identifiers.
const (
	Llama31_8B     = ModelPrefix + "llama-v3p1-8b-instruct"
	Llama31_70B    = ModelPrefix + "llama-v3p1-70b-instruct"
	Llama33_70B    = ModelPrefix + "llama-v3p3-70b-instruct"
	Llama4Maverick = ModelPrefix + "llama4-maverick-instruct-basic"
	DeepSeekV3     = ModelPrefix + "deepseek-v3"
	DeepSeekR1     = ModelPrefix + "deepseek-r1"
	Qwen25_72B     = ModelPrefix + "qwen2p5-72b-instruct"
)

const inlineTransform = "#transform=inline"

// Models lists the models the package knows by name.
func Models() []string {
	return []string{Llama31_8B, Llama31_70B, Llama33_70B, Llama4Maverick, DeepSeekV3, DeepSeekR1, Qwen25_72B}
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

// Provider is the Fireworks provider.
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

// Adapter is the Fireworks side of the driver. Reasoning models inline their
// chain of thought in <think> tags.
type Adapter struct {
	httpbase.SSE
	pricing.Heuristic

	cfg Config
}

var _ httpbase.Adapter[openaicompat.Request, openaicompat.Response] = (*Adapter)(nil)

var _ httpbase.ThinkTagger = (*Adapter)(nil)

// NewAdapter creates the adapter. An empty base URL means DefaultBaseURL.
func NewAdapter(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{
		Heuristic: pricing.Heuristic{Provider: provider.Fireworks, MessageOverhead: 3, RequestOverhead: 3},
		cfg:       cfg,
	}
}

func (a *Adapter) Name() provider.Name { return provider.Fireworks }

func (a *Adapter) RequiredEnvVars() []string { return []string{EnvAPIKey} }

func (a *Adapter) SupportsModel(model string) bool { return strings.HasPrefix(model, "accounts/") }

func (a *Adapter) IsStreamable(string, *tool.Set) bool { return true }

func (a *Adapter) ProbeModel() string { return Llama31_8B }

// UsesThinkTags reports whether model is a reasoning model that emits <think> blocks.
func (a *Adapter) UsesThinkTags(model string) bool {
	name := strings.TrimPrefix(model, ModelPrefix)
	return strings.HasPrefix(name, "deepseek-r1") || strings.HasPrefix(name, "qwq")
}

func (a *Adapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, stream bool) (openaicompat.Request, error) {
	msgs, err := openaicompat.ConvertMessages(conv, openaicompat.ConvertOptions{DocumentURL: inlineDocument})
	if err != nil {
		return openaicompat.Request{}, err
	}
	tools, err := openaicompat.ConvertTools(options.EnabledTools)
	if err != nil {
		return openaicompat.Request{}, err
	}

	req := openaicompat.Request{
		Model:       options.Model,
		Messages:    msgs,
		Tools:       tools,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Stream:      stream,
	}
	if len(options.OutputSchema) > 0 {
		req.ResponseFormat = openaicompat.JSONObjectResponseFormat(options.OutputSchema)
	}
	return req, nil
}

// inlineDocument asks Fireworks to inline a document as text, which lets
// models without vision read PDFs and other documents.
func inlineDocument(f messages.File) string {
	return f.DataURL() + inlineTransform
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
	return h, nil
}

func (a *Adapter) ExtractContent(resp *openaicompat.Response) (string, error) {
	return openaicompat.ExtractContent(resp)
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

// HandleErrorStatusCode classifies Fireworks errors. Unknown models come back
// as 404 with a "Model not found" message, which the status fallback covers.
func (a *Adapter) HandleErrorStatusCode(status int, _ http.Header, body []byte) *provider.Error {
	if pe := openaicompat.ClassifyError(status, body); pe != nil {
		return pe
	}
	msg := strings.ToLower(httpbase.ErrorMessage(body))
	if status == http.StatusBadRequest && strings.Contains(msg, "grammar") {
		return provider.NewError(provider.KindStructuredGeneration, httpbase.ErrorMessage(body))
	}
	return nil
}

func (a *Adapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return openaicompat.Standardize(raw)
}

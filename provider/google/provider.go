// Package google serves Gemini models through the Vertex AI generateContent API.
package google

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
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
	"github.com/tidwall/gjson"
	"github.com/zeebo/blake3"
)

const (
	// DefaultEndpoint is the regional API root, {region} is replaced by the picked location.
	DefaultEndpoint = "https://{region}-aiplatform.googleapis.com"
	// GlobalEndpoint serves the "global" location.
	GlobalEndpoint = "https://aiplatform.googleapis.com"
	// DefaultLocation is used when no location is configured.
	DefaultLocation = "us-central1"

	EnvProjectID   = "GOOGLE_VERTEX_AI_PROJECT_ID"
	EnvLocations   = "GOOGLE_VERTEX_AI_LOCATIONS"
	EnvAccessToken = "GOOGLE_VERTEX_AI_ACCESS_TOKEN"
)

// Well known model identifiers.
const (
	Gemini25Pro       = "gemini-2.5-pro"
	Gemini25Flash     = "gemini-2.5-flash"
	Gemini20Flash     = "gemini-2.0-flash-001"
	Gemini20FlashLite = "gemini-2.0-flash-lite-001"
	Gemini15Pro       = "gemini-1.5-pro-002"
	Gemini15Flash     = "gemini-1.5-flash-002"
)

// Models lists the models the package knows by name.
func Models() []string {
	return []string{Gemini25Pro, Gemini25Flash, Gemini20Flash, Gemini20FlashLite, Gemini15Pro, Gemini15Flash}
}

// TokenSource returns an OAuth2 access token for the Vertex API.
type TokenSource func(ctx context.Context) (string, error)

// Config holds the project, locations and credentials.
type Config struct {
	ProjectID   string   `mapstructure:"project_id"`
	Locations   []string `mapstructure:"locations"`
	AccessToken string   `mapstructure:"access_token"`
	// Endpoint is a URL template, {region} is replaced by the location of the attempt.
	Endpoint string `mapstructure:"endpoint"`

	// TokenSource takes precedence over AccessToken.
	TokenSource TokenSource `mapstructure:"-"`
}

// ConfigFromEnv reads the configuration from the environment.
// GOOGLE_VERTEX_AI_LOCATIONS is a comma separated list.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		ProjectID:   os.Getenv(EnvProjectID),
		AccessToken: os.Getenv(EnvAccessToken),
		Locations:   splitList(os.Getenv(EnvLocations)),
	}
	var missing []string
	if cfg.ProjectID == "" {
		missing = append(missing, EnvProjectID)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, EnvAccessToken)
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("%s not set", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Provider is the Vertex AI provider.
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

// Adapter is the Vertex side of the driver.
type Adapter struct {
	httpbase.SSE
	pricing.Heuristic

	cfg  Config
	pick httpbase.Picker
}

var _ httpbase.Adapter[Request, Response] = (*Adapter)(nil)

var _ httpbase.ReasoningExtractor[Response] = (*Adapter)(nil)

// NewAdapter creates the adapter. Empty locations mean DefaultLocation.
func NewAdapter(cfg Config) *Adapter {
	if len(cfg.Locations) == 0 {
		cfg.Locations = []string{DefaultLocation}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Adapter{
		// Gemini bills characters, estimates stay fractional.
		Heuristic: pricing.Heuristic{Provider: provider.GoogleVertex, BillCharacters: true},
		cfg:       cfg,
	}
}

func (a *Adapter) Name() provider.Name { return provider.GoogleVertex }

func (a *Adapter) RequiredEnvVars() []string { return []string{EnvProjectID, EnvAccessToken} }

func (a *Adapter) SupportsModel(model string) bool { return strings.HasPrefix(model, "gemini-") }

func (a *Adapter) IsStreamable(string, *tool.Set) bool { return true }

func (a *Adapter) ProbeModel() string { return Gemini20FlashLite }

func thinks(model string) bool { return strings.HasPrefix(model, "gemini-2.5") }

func (a *Adapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, _ bool) (Request, error) {
	system, contents, err := convertMessages(conv)
	if err != nil {
		return Request{}, err
	}
	tools, err := convertTools(options.EnabledTools)
	if err != nil {
		return Request{}, err
	}

	gen := &GenerationConfig{
		Temperature:     options.Temperature,
		MaxOutputTokens: options.MaxTokens,
	}
	if len(options.OutputSchema) > 0 {
		gen.ResponseMimeType = "application/json"
		if options.StructuredGeneration {
			gen.ResponseSchema = SanitizeSchema(options.OutputSchema)
		}
	}
	if thinks(options.Model) {
		gen.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true}
	}

	return Request{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  gen,
		Tools:             tools,
	}, nil
}

// RequestURL picks a location the call has not excluded yet.
func (a *Adapter) RequestURL(call *provider.Call, model string, stream bool) (httpbase.Endpoint, error) {
	region, err := httpbase.PickRegion(call, a.cfg.Locations, a.pick)
	if err != nil {
		return httpbase.Endpoint{}, err
	}

	root := strings.ReplaceAll(a.cfg.Endpoint, "{region}", region)
	if region == "global" && a.cfg.Endpoint == DefaultEndpoint {
		root = GlobalEndpoint
	}
	method := ":generateContent"
	if stream {
		method = ":streamGenerateContent?alt=sse"
	}
	u := fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s%s",
		root, url.PathEscape(a.cfg.ProjectID), region, url.PathEscape(model), method)
	return httpbase.Endpoint{URL: u, Region: region}, nil
}

func (a *Adapter) RequestHeaders(ctx context.Context, _ provider.Options) (http.Header, error) {
	token := a.cfg.AccessToken
	if a.cfg.TokenSource != nil {
		var err error
		if token, err = a.cfg.TokenSource(ctx); err != nil {
			return nil, provider.NewError(provider.KindProviderUnavailable, "fetching access token", provider.WithCause(err))
		}
	}
	if token == "" {
		return nil, errors.New("missing access token")
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

func (a *Adapter) ExtractContent(resp *Response) (string, error) {
	cand, err := candidate(resp)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if !p.Thought {
				sb.WriteString(p.Text)
			}
		}
	}
	return sb.String(), finishError(cand.FinishReason)
}

func candidate(resp *Response) (*Candidate, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, provider.NewError(provider.KindContentModeration, "prompt blocked: "+resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, provider.NewError(provider.KindUnknownProvider, "response has no candidates")
	}
	return &resp.Candidates[0], nil
}

func (a *Adapter) ExtractReasoning(resp *Response) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var steps []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Thought && p.Text != "" {
			steps = append(steps, p.Text)
		}
	}
	return strings.Join(steps, "\n")
}

func (a *Adapter) ExtractUsage(resp *Response) *provider.Usage {
	return convertUsage(resp.UsageMetadata)
}

// convertUsage maps usage metadata. Thought tokens are billed as output and
// audio prompt tokens are priced apart from the text prompt.
func convertUsage(u *UsageMetadata) *provider.Usage {
	if u == nil {
		return nil
	}
	prompt := u.PromptTokenCount
	usage := &provider.Usage{
		PromptTokenCountCached: swag.Float64(u.CachedContentTokenCount),
		CompletionTokenCount:   swag.Float64(u.CandidatesTokenCount + u.ThoughtsTokenCount),
	}
	if u.ThoughtsTokenCount > 0 {
		usage.ReasoningTokenCount = swag.Float64(u.ThoughtsTokenCount)
	}
	for _, d := range u.PromptTokensDetails {
		if d.Modality == "AUDIO" && d.TokenCount > 0 {
			usage.PromptAudioTokenCount = swag.Float64(d.TokenCount)
			prompt -= d.TokenCount
		}
	}
	usage.PromptTokenCount = swag.Float64(max(prompt, u.CachedContentTokenCount))
	return usage
}

func (a *Adapter) ExtractNativeToolCalls(resp *Response) ([]messages.ToolCallRequest, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	buf := toolcall.NewBuffer()
	var calls []messages.ToolCallRequest
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.FunctionCall == nil {
			continue
		}
		call, err := bufferCall(buf, p.FunctionCall)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// bufferCall runs a whole function call through buf. Gemini sends calls in
// one piece and often without an id, the id is then derived from the call
// and its position.
func bufferCall(buf *toolcall.Buffer, fc *FunctionCall) (messages.ToolCallRequest, error) {
	idx := buf.Len()
	args := "{}"
	if len(fc.Args) > 0 {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return messages.ToolCallRequest{}, provider.NewError(provider.KindUnknownProvider, "encoding function call arguments", provider.WithCause(err))
		}
		args = string(b)
	}
	id := fc.ID
	if id == "" {
		id = callID(fc.Name, args, idx)
	}
	if err := buf.Start(idx, id, fc.Name); err != nil {
		return messages.ToolCallRequest{}, err
	}
	if err := buf.Append(idx, args); err != nil {
		return messages.ToolCallRequest{}, err
	}
	call, err := buf.Complete(idx)
	if err != nil {
		return messages.ToolCallRequest{}, provider.NewError(provider.KindUnknownProvider, "invalid function call arguments", provider.WithCause(err))
	}
	return call, nil
}

func callID(name, args string, idx int) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", name, args, idx)
	return "call_" + hex.EncodeToString(h.Sum(nil)[:8])
}

// ExtractStreamDelta handles one chunk. Every chunk is a complete response
// object carrying the new parts, usage metadata arrives with the last ones.
func (a *Adapter) ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	if httpbase.IsDone(payload) {
		return nil, nil
	}
	if e := gjson.GetBytes(payload, "error"); e.IsObject() {
		pe := classify(e)
		pe.RawPayload = string(payload)
		return nil, pe
	}

	var chunk Response
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "decoding stream chunk", provider.WithCause(err), provider.WithRaw(payload))
	}
	if u := convertUsage(chunk.UsageMetadata); u != nil {
		raw.Usage = *u
	}

	delta := &provider.ParsedResponse{}
	if len(chunk.Candidates) == 0 {
		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return nil, provider.NewError(provider.KindContentModeration, "prompt blocked: "+chunk.PromptFeedback.BlockReason)
		}
		return delta, nil
	}

	cand := chunk.Candidates[0]
	if cand.Content != nil {
		var content, reasoning strings.Builder
		for _, p := range cand.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				call, err := bufferCall(buf, p.FunctionCall)
				if err != nil {
					return nil, err
				}
				delta.ToolCalls = append(delta.ToolCalls, call)
			case p.Thought:
				reasoning.WriteString(p.Text)
			default:
				content.WriteString(p.Text)
			}
		}
		delta.Content = content.String()
		delta.Reasoning = reasoning.String()
	}
	if err := finishError(cand.FinishReason); err != nil {
		return delta, err
	}
	return delta, nil
}

func finishError(reason string) error {
	switch {
	case reason == FinishMaxTokens:
		return provider.NewError(provider.KindMaxTokensExceeded, "model reached its maximum number of output tokens")
	case moderationReasons[reason]:
		return provider.NewError(provider.KindContentModeration, "generation stopped: "+reason)
	}
	return nil
}

func (a *Adapter) HandleErrorStatusCode(status int, _ http.Header, body []byte) *provider.Error {
	e := gjson.GetBytes(body, "error")
	if !e.IsObject() {
		e = gjson.GetBytes(body, "0.error")
	}
	if !e.IsObject() {
		return nil
	}
	pe := classify(e)
	if pe.Kind == provider.KindUnknownProvider {
		return nil
	}
	pe.StatusCode = status
	pe.RawPayload = string(body)
	return pe
}

// classify maps a google.rpc.Status error to a kind. Statuses without a
// mapping are KindUnknownProvider.
func classify(e gjson.Result) *provider.Error {
	message := e.Get("message").String()
	msg := strings.ToLower(message)

	var (
		kind     provider.Kind
		failover bool
	)
	switch e.Get("status").String() {
	case "RESOURCE_EXHAUSTED":
		kind = provider.KindRateLimited
	case "NOT_FOUND":
		kind = provider.KindMissingModel
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		kind = provider.KindProviderUnavailable
	case "DEADLINE_EXCEEDED":
		kind = provider.KindReadTimeout
	case "UNAVAILABLE":
		kind, failover = provider.KindProviderUnavailable, true
	case "INTERNAL":
		kind = provider.KindProviderInternal
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		switch {
		case strings.Contains(msg, "schema"):
			kind = provider.KindStructuredGeneration
		case strings.Contains(msg, "does not support"):
			kind = provider.KindModelDoesNotSupportMode
		case strings.Contains(msg, "too large") || strings.Contains(msg, "exceeds the maximum"):
			kind = provider.KindFileTooLarge
		case strings.Contains(msg, "mime") || strings.Contains(msg, "image") || strings.Contains(msg, "file"):
			kind = provider.KindInvalidFile
		default:
			kind = provider.KindBadRequest
		}
	default:
		kind = provider.KindUnknownProvider
	}
	pe := provider.NewError(kind, message)
	pe.Failover = failover
	return pe
}

func (a *Adapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	return standardize(raw)
}

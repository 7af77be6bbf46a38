package bedrock

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/casualjim/hoot/internal/providertest"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/casualjim/hoot/tool"
	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestProvider(t *testing.T, h http.Handler, regions ...string) (*Provider, *providertest.Server) {
	t.Helper()
	srv := providertest.NewServer(t, h)
	a := NewAdapter(Config{APIKey: "bedrock-test", Endpoint: srv.URL + "/{region}", Regions: regions})
	a.pick = func(int) int { return 0 }
	return httpbase.New(a, httpbase.Settings{}), srv
}

func conversation() []messages.Message {
	return []messages.Message{
		messages.System("You are a librarian."),
		messages.UserText("Recommend a book about owls."),
	}
}

func mustOptions(t *testing.T, model string, opts ...provider.Option) provider.Options {
	t.Helper()
	options, err := provider.NewOptions(model, opts...)
	require.NoError(t, err)
	return options
}

type frame struct {
	event     string
	exception string
	payload   string
}

func encodeFrames(t *testing.T, frames ...frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	for _, f := range frames {
		headers := eventstream.Headers{{Name: ":content-type", Value: eventstream.StringValue("application/json")}}
		if f.exception != "" {
			headers = append(headers,
				eventstream.Header{Name: ":message-type", Value: eventstream.StringValue("exception")},
				eventstream.Header{Name: ":exception-type", Value: eventstream.StringValue(f.exception)})
		} else {
			headers = append(headers,
				eventstream.Header{Name: ":message-type", Value: eventstream.StringValue("event")},
				eventstream.Header{Name: ":event-type", Value: eventstream.StringValue(f.event)})
		}
		require.NoError(t, enc.Encode(&buf, eventstream.Message{Headers: headers, Payload: []byte(f.payload)}))
	}
	return buf.Bytes()
}

func eventStream(t *testing.T, frames ...frame) http.HandlerFunc {
	return providertest.Raw("application/vnd.amazon.eventstream", encodeFrames(t, frames...))
}

func amznError(status int, exception, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-amzn-ErrorType", exception+":http://internal.amazon.com/coral/com.amazon.bedrock/")
		providertest.JSON(status, fmt.Sprintf(`{"message":%q}`, message))(w, r)
	}
}

func TestBaseModel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{Claude35Haiku, Claude35Haiku},
		{"us." + Claude35Haiku, Claude35Haiku},
		{"eu." + NovaLite, NovaLite},
		{"apac." + Claude37Sonnet, Claude37Sonnet},
		{"global.anthropic.claude-sonnet-4-20250514-v1:0", "anthropic.claude-sonnet-4-20250514-v1:0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BaseModel(tt.in), tt.in)
	}
}

func TestAdapter_Models(t *testing.T) {
	a := NewAdapter(Config{APIKey: "k"})
	for _, m := range Models() {
		assert.True(t, a.SupportsModel(m), m)
	}
	assert.True(t, a.SupportsModel("us."+Claude37Sonnet))
	assert.False(t, a.SupportsModel("gpt-4o"))
	assert.False(t, a.SupportsModel("claude-3-5-haiku-latest"))

	tools := tool.NewSet(tool.Must("search"))
	assert.True(t, a.IsStreamable(Llama33_70B, nil))
	assert.False(t, a.IsStreamable(Llama33_70B, tools))
	assert.False(t, a.IsStreamable("us."+MistralLarge, tools))
	assert.True(t, a.IsStreamable(Claude35Sonnet, tools))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvAPIKey, "key")
	t.Setenv(EnvRegions, "us-east-1,us-west-2")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "us-west-2"}, cfg.Regions)

	t.Setenv(EnvAPIKey, "")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}

func TestAdapter_RequestURL(t *testing.T) {
	a := NewAdapter(Config{APIKey: "k", Regions: []string{"us-west-2"}})
	ep, err := a.RequestURL(provider.NewCall(), Claude35Haiku, false)
	require.NoError(t, err)
	assert.Equal(t, "https://bedrock-runtime.us-west-2.amazonaws.com/model/anthropic.claude-3-5-haiku-20241022-v1:0/converse", ep.URL)
	assert.Equal(t, "us-west-2", ep.Region)

	ep, err = a.RequestURL(provider.NewCall(), "arn:aws:bedrock:us-west-2:123:inference-profile/x", true)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ep.URL, "/model/arn:aws:bedrock:us-west-2:123:inference-profile%2Fx/converse-stream"), ep.URL)
}

type searchInput struct {
	Query string `json:"query" jsonschema:"required"`
}

func TestAdapter_BuildRequest(t *testing.T) {
	a := NewAdapter(Config{APIKey: "k"})
	schema := map[string]any{"type": "object", "properties": map[string]any{"title": map[string]any{"type": "string"}}}
	conv := append(conversation(),
		messages.User(
			messages.Text("compare these"),
			messages.InlineFile("image/png", []byte{0x89, 'P', 'N', 'G'}),
			messages.InlineFile("application/pdf", []byte("%PDF-1.7")),
			messages.File{URL: "s3://bucket/b.pdf", ContentType: "application/pdf"},
		),
		messages.Assistant("", messages.ToolCallRequest{ID: "tu_1", ToolName: "search", ToolInput: map[string]any{"query": "owls"}}),
		messages.ToolResults(messages.ToolCallResult{ID: "tu_1", Error: "index offline"}),
	)
	options := mustOptions(t, Claude35Sonnet,
		provider.OutputSchema(schema),
		provider.Tools(tool.Must("search", tool.InputOf[searchInput]())),
		provider.Temperature(0.2),
	)

	req, err := a.BuildRequest(context.Background(), conv, options, false)
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	body := gjson.ParseBytes(b)

	assert.Equal(t, "You are a librarian.", body.Get("system.0.text").String())
	assert.Contains(t, body.Get("system.1.text").String(), "Respond only with a JSON object")
	assert.InDelta(t, 0.2, body.Get("inferenceConfig.temperature").Float(), 1e-9)
	assert.False(t, body.Get("inferenceConfig.maxTokens").Exists())

	user := body.Get("messages.1.content")
	assert.Equal(t, "png", user.Get("1.image.format").String())
	assert.NotEmpty(t, user.Get("1.image.source.bytes").String())
	assert.Equal(t, "pdf", user.Get("2.document.format").String())
	assert.Equal(t, "document-1", user.Get("2.document.name").String())
	assert.Equal(t, "document-2", user.Get("3.document.name").String())
	assert.Equal(t, "s3://bucket/b.pdf", user.Get("3.document.source.s3Location.uri").String())

	assert.Equal(t, "owls", body.Get("messages.2.content.0.toolUse.input.query").String())
	assert.Equal(t, "tu_1", body.Get("messages.3.content.0.toolResult.toolUseId").String())
	assert.Equal(t, "error", body.Get("messages.3.content.0.toolResult.status").String())
	assert.Equal(t, "search", body.Get("toolConfig.tools.0.toolSpec.name").String())
	assert.Equal(t, "object", body.Get("toolConfig.tools.0.toolSpec.inputSchema.json.type").String())

	tests := []struct {
		name string
		file messages.File
		want error
	}{
		{"audio", messages.InlineFile("audio/wav", []byte("x")), provider.ErrModelDoesNotSupportMode},
		{"image by url", messages.ImageURL("https://example.com/owl.png"), provider.ErrInvalidFile},
		{"tiff", messages.InlineFile("image/tiff", []byte("x")), provider.ErrInvalidFile},
		{"zip", messages.InlineFile("application/zip", []byte("x")), provider.ErrInvalidFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.BuildRequest(context.Background(), []messages.Message{messages.User(tt.file)}, mustOptions(t, Claude35Sonnet), false)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProvider_Complete(t *testing.T) {
	p, srv := newTestProvider(t, providertest.JSON(http.StatusOK, `{
		"output":{"message":{"role":"assistant","content":[
			{"reasoningContent":{"reasoningText":{"text":"owls are birds","signature":"sig"}}},
			{"text":"{\"title\":\"Owls\"}"}
		]}},
		"stopReason":"end_turn",
		"usage":{"inputTokens":1000,"outputTokens":100,"totalTokens":1100}}`), "us-east-1")
	call := provider.NewCall()

	model := "us." + Claude35Haiku
	out, err := p.Complete(context.Background(), call, conversation(), mustOptions(t, model), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Owls"}, out.Output)
	assert.Equal(t, []string{"owls are birds"}, out.ReasoningSteps)

	req := srv.Last(t)
	assert.Equal(t, "/us-east-1/model/"+model+"/converse", req.Path)
	assert.Equal(t, "Bearer bedrock-test", req.Header.Get("Authorization"))

	usage := call.LastCompletion().Usage
	assert.InDelta(t, 1000*0.8/1e6, swag.Float64Value(usage.PromptCostUSD), 1e-12)
	assert.InDelta(t, 100*4/1e6, swag.Float64Value(usage.CompletionCostUSD), 1e-12)
}

func TestProvider_CompleteToolUse(t *testing.T) {
	p, _ := newTestProvider(t, providertest.JSON(http.StatusOK, `{
		"output":{"message":{"role":"assistant","content":[{"toolUse":{"toolUseId":"tu_1","name":"search","input":{"query":"owls"}}}]}},
		"stopReason":"tool_use","usage":{"inputTokens":10,"outputTokens":10}}`))

	out, err := p.Complete(context.Background(), nil, conversation(), mustOptions(t, NovaPro), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out.Output)
	assert.Equal(t, []messages.ToolCallRequest{{ID: "tu_1", ToolName: "search", ToolInput: map[string]any{"query": "owls"}}}, out.ToolCalls)
}

func streamFrames(stopReason string) []frame {
	return []frame{
		{event: "messageStart", payload: `{"role":"assistant"}`},
		{event: "contentBlockDelta", payload: `{"contentBlockIndex":0,"delta":{"reasoningContent":{"text":"owls are birds"}}}`},
		{event: "contentBlockStop", payload: `{"contentBlockIndex":0}`},
		{event: "contentBlockDelta", payload: `{"contentBlockIndex":1,"delta":{"text":"{\"title\":"}}`},
		{event: "contentBlockDelta", payload: `{"contentBlockIndex":1,"delta":{"text":"\"Owls\"}"}}`},
		{event: "contentBlockStop", payload: `{"contentBlockIndex":1}`},
		{event: "contentBlockStart", payload: `{"contentBlockIndex":2,"start":{"toolUse":{"toolUseId":"tu_1","name":"search"}}}`},
		{event: "contentBlockDelta", payload: `{"contentBlockIndex":2,"delta":{"toolUse":{"input":"{\"query\":"}}}`},
		{event: "contentBlockDelta", payload: `{"contentBlockIndex":2,"delta":{"toolUse":{"input":"\"owls\"}"}}}`},
		{event: "contentBlockStop", payload: `{"contentBlockIndex":2}`},
		{event: "messageStop", payload: fmt.Sprintf(`{"stopReason":%q}`, stopReason)},
		{event: "metadata", payload: `{"usage":{"inputTokens":25,"outputTokens":42,"totalTokens":67},"metrics":{"latencyMs":120}}`},
	}
}

func TestProvider_Stream(t *testing.T) {
	p, srv := newTestProvider(t, eventStream(t, streamFrames("tool_use")...))
	call := provider.NewCall()

	evs, err := p.Stream(context.Background(), call, conversation(), mustOptions(t, Claude37Sonnet, provider.OutputSchema(map[string]any{"type": "object"})), nil, nil)
	require.NoError(t, err)
	chunks, final := providertest.Final(t, providertest.Collect(t, evs))

	require.NotEmpty(t, chunks)
	assert.Equal(t, map[string]any{"title": "Owls"}, final.Output.Output)
	assert.Equal(t, "owls are birds", final.Output.Reasoning())
	require.Len(t, final.Output.ToolCalls, 1)
	assert.Equal(t, map[string]any{"query": "owls"}, final.Output.ToolCalls[0].ToolInput)
	assert.Equal(t, 25.0, swag.Float64Value(final.Usage.PromptTokenCount))
	assert.Equal(t, 42.0, swag.Float64Value(final.Usage.CompletionTokenCount))
	assert.True(t, strings.HasSuffix(srv.Last(t).Path, "/converse-stream"))
}

func TestProvider_StreamMaxTokens(t *testing.T) {
	p, _ := newTestProvider(t, eventStream(t, streamFrames("max_tokens")...))
	call := provider.NewCall()

	evs, err := p.Stream(context.Background(), call, conversation(), mustOptions(t, Claude37Sonnet), provider.TextOutput, nil)
	require.NoError(t, err)
	_, err = providertest.Failure(t, providertest.Collect(t, evs))
	require.ErrorIs(t, err, provider.ErrMaxTokensExceeded)
	assert.Equal(t, 42.0, swag.Float64Value(call.LastCompletion().Usage.CompletionTokenCount))
}

func TestProvider_StreamException(t *testing.T) {
	p, _ := newTestProvider(t, eventStream(t,
		frame{event: "messageStart", payload: `{"role":"assistant"}`},
		frame{exception: "modelStreamErrorException", payload: `{"message":"Model stream failed","originalStatusCode":500}`},
	))

	evs, err := p.Stream(context.Background(), provider.NewCall(), conversation(), mustOptions(t, NovaLite), provider.TextOutput, nil)
	require.NoError(t, err)
	_, err = providertest.Failure(t, providertest.Collect(t, evs))
	require.ErrorIs(t, err, provider.ErrProviderInternal)
	assert.Contains(t, err.Error(), "Model stream failed")
}

func TestEventFrames(t *testing.T) {
	r := newEventFrames(bytes.NewReader(encodeFrames(t,
		frame{event: "contentBlockStop", payload: `{"contentBlockIndex":3}`},
		frame{exception: "throttlingException", payload: `{"message":"slow down"}`},
	)))

	payload, err := r.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"contentBlockStop":{"contentBlockIndex":3}}`, string(payload))

	payload, err = r.Next()
	require.NoError(t, err)
	assert.JSONEq(t, `{"exception":{"message":"slow down","type":"throttlingException"}}`, string(payload))

	_, err = r.Next()
	assert.Error(t, err)

	a := NewAdapter(Config{APIKey: "k"})
	_, err = a.ExtractStreamDelta(payload, provider.NewRawCompletion(""), toolcall.NewBuffer())
	assert.ErrorIs(t, err, provider.ErrRateLimited)
}

func TestProvider_RegionFailover(t *testing.T) {
	p, srv := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/us-east-1/") {
			amznError(http.StatusTooManyRequests, "ThrottlingException", "Too many requests, please wait before trying again.")(w, r)
			return
		}
		providertest.JSON(http.StatusOK, `{"output":{"message":{"role":"assistant","content":[{"text":"\"ok\""}]}},"stopReason":"end_turn"}`)(w, r)
	}), "us-east-1", "us-west-2")
	call := provider.NewCall()

	out, err := p.Complete(context.Background(), call, conversation(), mustOptions(t, NovaMicro), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Output)
	assert.Len(t, srv.Requests(), 2)
	assert.Equal(t, []string{"us-east-1"}, call.ExcludedRegions())
	assert.Equal(t, "us-west-2", call.LastCompletion().Region)
}

func TestProvider_RegionOutageFailover(t *testing.T) {
	tests := []struct {
		name      string
		exception string
	}{
		{"service unavailable", "ServiceUnavailableException"},
		{"model not ready", "ModelNotReadyException"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, srv := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasPrefix(r.URL.Path, "/us-east-1/") {
					amznError(http.StatusServiceUnavailable, tt.exception, "Bedrock is unavailable in this region.")(w, r)
					return
				}
				providertest.JSON(http.StatusOK, `{"output":{"message":{"role":"assistant","content":[{"text":"\"ok\""}]}},"stopReason":"end_turn"}`)(w, r)
			}), "us-east-1", "us-west-2")
			call := provider.NewCall()

			out, err := p.Complete(context.Background(), call, conversation(), mustOptions(t, NovaMicro), nil)
			require.NoError(t, err)
			assert.Equal(t, "ok", out.Output)
			assert.Len(t, srv.Requests(), 2)
			assert.Equal(t, []string{"us-east-1"}, call.ExcludedRegions())
			assert.Equal(t, "us-west-2", call.LastCompletion().Region)
		})
	}
}

func TestAdapter_StreamMissingBlockIndex(t *testing.T) {
	a := NewAdapter(Config{APIKey: "k"})
	_, err := a.ExtractStreamDelta([]byte(`{"contentBlockDelta":{"delta":{"toolUse":{"input":"{}"}}}}`), provider.NewRawCompletion(""), toolcall.NewBuffer())
	require.ErrorIs(t, err, toolcall.ErrMissingIndex)
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		exception string
		message   string
		want      error
	}{
		{"access denied", http.StatusForbidden, "AccessDeniedException", "You don't have access to the model", provider.ErrProviderUnavailable},
		{"not found", http.StatusNotFound, "ResourceNotFoundException", "Model not found", provider.ErrMissingModel},
		{"not ready", http.StatusTooManyRequests, "ModelNotReadyException", "Model is not ready", provider.ErrProviderUnavailable},
		{"unsupported mode", http.StatusBadRequest, "ValidationException", "This model doesn't support tool use in streaming mode.", provider.ErrModelDoesNotSupportMode},
		{"bad image", http.StatusBadRequest, "ValidationException", "Could not process image", provider.ErrInvalidFile},
		{"invalid model", http.StatusBadRequest, "ValidationException", "The provided model identifier is invalid.", provider.ErrMissingModel},
		{"bad request", http.StatusBadRequest, "ValidationException", "temperature: must be less than 1", provider.ErrBadRequest},
		{"internal", http.StatusInternalServerError, "InternalServerException", "boom", provider.ErrProviderInternal},
		{"unknown exception", http.StatusBadRequest, "SomethingNewException", "?", provider.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t, amznError(tt.status, tt.exception, tt.message))
			_, err := p.Complete(context.Background(), nil, conversation(), mustOptions(t, Claude35Haiku), nil)
			require.ErrorIs(t, err, tt.want)
			pe, _ := provider.AsError(err)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestProvider_StandardizeMessages(t *testing.T) {
	p := New(Config{APIKey: "k"}, httpbase.Settings{})
	std, err := p.StandardizeMessages([]json.RawMessage{
		json.RawMessage(`{"role":"user","content":[{"text":"hi"},{"image":{"format":"png","source":{"bytes":"AAAA"}}}]}`),
		json.RawMessage(`{"role":"assistant","content":[{"toolUse":{"toolUseId":"t1","name":"search","input":{"query":"owls"}}}]}`),
		json.RawMessage(`{"role":"user","content":[{"toolResult":{"toolUseId":"t1","content":[{"text":"3 books"}]}}]}`),
		json.RawMessage(`{"role":"user","content":[{"toolResult":{"toolUseId":"t2","content":[{"json":{"ok":false}}],"status":"error"}}]}`),
	})
	require.NoError(t, err)
	require.Len(t, std, 3)
	assert.Equal(t, "data:image/png;base64,AAAA", std[0].Content[1].ImageURL.URL)
	assert.Equal(t, "owls", std[1].Content[0].ToolCallRequest.ToolInput["query"])
	require.Len(t, std[2].Content, 2)
	assert.Equal(t, "3 books", std[2].Content[0].ToolCallResult.Result)
	assert.Equal(t, `{"ok":false}`, std[2].Content[1].ToolCallResult.Error)
}

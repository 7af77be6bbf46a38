package httpbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/runlog"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

const fakePrices = `
fake:
  m1:
    prompt: 1
    completion: 2
`

type fakeRequest struct {
	Model    string   `json:"model"`
	Stream   bool     `json:"stream"`
	Messages []string `json:"messages"`
}

type fakeUsage struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

type fakeToolCall struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Args  string `json:"args,omitempty"`
}

type fakeResponse struct {
	Content   *string        `json:"content,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Finish    string         `json:"finish,omitempty"`
	Usage     *fakeUsage     `json:"usage,omitempty"`
	ToolCalls []fakeToolCall `json:"tool_calls,omitempty"`
}

// fakeAdapter speaks a tiny JSON dialect over SSE.
type fakeAdapter struct {
	SSE
	pricing.Heuristic

	baseURL   string
	regions   []string
	pick      Picker
	thinkTags bool
}

func newFakeAdapter(t *testing.T, baseURL string) *fakeAdapter {
	t.Helper()
	table, err := pricing.Parse([]byte(fakePrices))
	require.NoError(t, err)
	return &fakeAdapter{
		Heuristic: pricing.Heuristic{Provider: "fake", Table: table},
		baseURL:   baseURL,
	}
}

func (f *fakeAdapter) Name() provider.Name { return "fake" }

func (f *fakeAdapter) RequiredEnvVars() []string { return []string{"FAKE_API_KEY"} }

func (f *fakeAdapter) SupportsModel(model string) bool { return model == "m1" }

func (f *fakeAdapter) IsStreamable(string, *tool.Set) bool { return true }

func (f *fakeAdapter) ProbeModel() string { return "m1" }

func (f *fakeAdapter) UsesThinkTags(string) bool { return f.thinkTags }

func (f *fakeAdapter) ExtractReasoning(r *fakeResponse) string { return r.Reasoning }

func (f *fakeAdapter) BuildRequest(_ context.Context, conv []messages.Message, options provider.Options, stream bool) (fakeRequest, error) {
	req := fakeRequest{Model: options.Model, Stream: stream}
	for _, m := range conv {
		req.Messages = append(req.Messages, m.Text())
	}
	return req, nil
}

func (f *fakeAdapter) RequestURL(call *provider.Call, _ string, _ bool) (Endpoint, error) {
	if len(f.regions) == 0 {
		return Endpoint{URL: f.baseURL + "/complete"}, nil
	}
	region, err := PickRegion(call, f.regions, f.pick)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{URL: f.baseURL + "/" + region, Region: region}, nil
}

func (f *fakeAdapter) RequestHeaders(context.Context, provider.Options) (http.Header, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer test")
	return h, nil
}

func (f *fakeAdapter) ExtractContent(r *fakeResponse) (string, error) {
	if r.Content == nil {
		return "", provider.NewError(provider.KindUnknownProvider, "response has no content")
	}
	switch r.Finish {
	case "length":
		return *r.Content, provider.NewError(provider.KindMaxTokensExceeded, "model reached max tokens")
	case "content_filter":
		return *r.Content, provider.NewError(provider.KindContentModeration, "output was filtered")
	}
	return *r.Content, nil
}

func (f *fakeAdapter) ExtractUsage(r *fakeResponse) *provider.Usage {
	if r.Usage == nil {
		return nil
	}
	return &provider.Usage{PromptTokenCount: swag.Float64(r.Usage.In), CompletionTokenCount: swag.Float64(r.Usage.Out)}
}

func (f *fakeAdapter) ExtractNativeToolCalls(r *fakeResponse) ([]messages.ToolCallRequest, error) {
	buf := toolcall.NewBuffer()
	for _, tc := range r.ToolCalls {
		if err := buf.Start(tc.Index, tc.ID, tc.Name); err != nil {
			return nil, err
		}
		if err := buf.Append(tc.Index, tc.Args); err != nil {
			return nil, err
		}
	}
	return buf.CompleteAll()
}

func (f *fakeAdapter) ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	if IsDone(payload) {
		return nil, nil
	}
	var chunk fakeResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, decodeError(err, payload)
	}
	if chunk.Usage != nil {
		raw.Usage.PromptTokenCount = swag.Float64(chunk.Usage.In)
		raw.Usage.CompletionTokenCount = swag.Float64(chunk.Usage.Out)
	}

	delta := &provider.ParsedResponse{Reasoning: chunk.Reasoning}
	if chunk.Content != nil {
		delta.Content = *chunk.Content
	}
	for _, tc := range chunk.ToolCalls {
		if !buf.Has(tc.Index) {
			if err := buf.Start(tc.Index, tc.ID, tc.Name); err != nil {
				return nil, err
			}
		}
		if err := buf.Append(tc.Index, tc.Args); err != nil {
			return nil, err
		}
	}

	switch chunk.Finish {
	case "length":
		return delta, provider.NewError(provider.KindMaxTokensExceeded, "model reached max tokens")
	case "content_filter":
		return delta, provider.NewError(provider.KindContentModeration, "output was filtered")
	case "tool_calls":
		calls, err := buf.CompleteAll()
		if err != nil {
			return nil, err
		}
		delta.ToolCalls = calls
	}
	return delta, nil
}

func (f *fakeAdapter) HandleErrorStatusCode(int, http.Header, []byte) *provider.Error { return nil }

func (f *fakeAdapter) StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error) {
	conv := make([]messages.Message, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal(r, &conv[i]); err != nil {
			return nil, err
		}
	}
	return messages.ToStandard(conv), nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// flakyTransport fails the first n round trips with err, then delegates.
func flakyTransport(n int, err error, hits *atomic.Int32) http.RoundTripper {
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if int(hits.Add(1)) <= n {
			return nil, err
		}
		return http.DefaultTransport.RoundTrip(r)
	})
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []runlog.Record
}

func (p *recordingPublisher) Publish(_ context.Context, rec runlog.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

func (p *recordingPublisher) Records() []runlog.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]runlog.Record(nil), p.records...)
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, body)
	}
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, f := range frames {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func content(s string) string {
	b, _ := json.Marshal(fakeResponse{Content: &s})
	return string(b)
}

func collect(t *testing.T, events <-chan provider.StreamEvent) []provider.StreamEvent {
	t.Helper()
	var out []provider.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func conversation() []messages.Message {
	return []messages.Message{
		messages.System("You extract data."),
		messages.UserText(strings.Repeat("hello ", 10)),
	}
}

var errBoom = errors.New("boom")

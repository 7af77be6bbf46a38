package httpbase

import (
	"context"
	"io"
	"net/http"

	"github.com/casualjim/hoot/internal/pricing"
	"github.com/casualjim/hoot/internal/sse"
	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

// Endpoint is where one attempt is sent.
type Endpoint struct {
	URL string
	// Region is empty for vendors with a single endpoint.
	Region string
}

// FrameReader yields the payloads of a streamed response body, io.EOF at the end.
type FrameReader interface {
	Next() ([]byte, error)
}

// Adapter is the vendor-specific half of a provider.
type Adapter[Req, Resp any] interface {
	pricing.Counter

	Name() provider.Name
	RequiredEnvVars() []string
	SupportsModel(model string) bool
	IsStreamable(model string, tools *tool.Set) bool
	// ProbeModel is the model used by CheckValid.
	ProbeModel() string

	BuildRequest(ctx context.Context, conv []messages.Message, options provider.Options, stream bool) (Req, error)
	// RequestURL picks the endpoint of the next attempt. Regional vendors skip
	// the regions excluded in call and fail with KindProviderUnavailable when none is left.
	RequestURL(call *provider.Call, model string, stream bool) (Endpoint, error)
	RequestHeaders(ctx context.Context, options provider.Options) (http.Header, error)

	// ExtractContent returns the text of a full response. A response without
	// any candidate is an error, an empty candidate is "".
	ExtractContent(resp *Resp) (string, error)
	ExtractUsage(resp *Resp) *provider.Usage
	ExtractNativeToolCalls(resp *Resp) ([]messages.ToolCallRequest, error)

	// NewFrameReader splits a streamed body into frames.
	NewFrameReader(body io.Reader) FrameReader
	// ExtractStreamDelta parses one frame. It records usage on raw and feeds
	// tool call fragments to buf. It returns nil only for the stream
	// terminator and an empty ParsedResponse for frames without new content.
	// A frame that ends the stream with a finish error may return its delta
	// next to the error so its content is still recorded.
	ExtractStreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error)

	// HandleErrorStatusCode classifies an error response. Returning nil falls
	// back to the classification by status code.
	HandleErrorStatusCode(status int, header http.Header, body []byte) *provider.Error

	StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error)
}

// ReasoningExtractor is implemented by adapters whose full responses carry
// reasoning separately from the content.
type ReasoningExtractor[Resp any] interface {
	ExtractReasoning(resp *Resp) string
}

// ThinkTagger is implemented by adapters whose models inline their
// reasoning in <think> tags.
type ThinkTagger interface {
	UsesThinkTags(model string) bool
}

// SSE gives an adapter the server-sent events frame reader.
type SSE struct{}

// NewFrameReader reads server-sent events, the [DONE] sentinel is passed
// through so the adapter can recognize it.
func (SSE) NewFrameReader(body io.Reader) FrameReader {
	return sseFrames{r: sse.NewReader(body)}
}

type sseFrames struct {
	r *sse.Reader
}

func (s sseFrames) Next() ([]byte, error) {
	frame, err := s.r.Next()
	if err != nil {
		return nil, err
	}
	return frame.Data, nil
}

// IsDone reports whether payload is the [DONE] sentinel.
func IsDone(payload []byte) bool {
	return sse.Frame{Data: payload}.IsDone()
}

package openaicompat

import (
	"strconv"
	"strings"

	"github.com/casualjim/hoot/internal/toolcall"
	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// ExtractContent returns the text of the first choice. A response without
// choices is an error, a choice without content is "". The content is
// returned next to finish-reason errors so it can be recorded.
func ExtractContent(resp *Response) (string, error) {
	if resp.Error != nil {
		return "", apiError(0, resp.Error)
	}
	if len(resp.Choices) == 0 {
		return "", provider.NewError(provider.KindUnknownProvider, "response has no choices")
	}
	choice := resp.Choices[0]
	content := choice.Message.Content.Text()
	if refusal := choice.Message.Refusal; refusal != "" {
		return content, provider.NewError(provider.KindContentModeration, refusal)
	}
	return content, finishError(choice.FinishReason)
}

// ExtractReasoning returns the reasoning_content of the first choice.
func ExtractReasoning(resp *Response) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.ReasoningContent
}

// ExtractUsage converts the reported usage, nil when there is none.
func ExtractUsage(resp *Response) *provider.Usage {
	return convertUsage(resp.Usage)
}

func convertUsage(u *Usage) *provider.Usage {
	if u == nil {
		return nil
	}
	usage := &provider.Usage{
		PromptTokenCount:     swag.Float64(u.PromptTokens),
		CompletionTokenCount: swag.Float64(u.CompletionTokens),
	}
	if d := u.PromptTokensDetails; d != nil {
		usage.PromptTokenCountCached = swag.Float64(d.CachedTokens)
		if d.AudioTokens != nil && *d.AudioTokens > 0 {
			usage.PromptAudioTokenCount = swag.Float64(*d.AudioTokens)
		}
	}
	if d := u.CompletionTokensDetails; d != nil {
		usage.ReasoningTokenCount = swag.Float64(d.ReasoningTokens)
	}
	return usage
}

// ExtractToolCalls parses the tool calls of the first choice.
func ExtractToolCalls(resp *Response) ([]messages.ToolCallRequest, error) {
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, nil
	}
	buf := toolcall.NewBuffer()
	for i, call := range resp.Choices[0].Message.ToolCalls {
		if err := buf.Start(i, call.ID, call.Function.Name); err != nil {
			return nil, err
		}
		if err := buf.Append(i, call.Function.Arguments); err != nil {
			return nil, err
		}
	}
	calls, err := buf.CompleteAll()
	if err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool call arguments", provider.WithCause(err))
	}
	return calls, nil
}

// StreamDelta parses one streamed frame. Usage frames overwrite the usage of
// raw, tool call fragments go to buf and are completed when the choice finishes.
func StreamDelta(payload []byte, raw *provider.RawCompletion, buf *toolcall.Buffer) (*provider.ParsedResponse, error) {
	if httpbase.IsDone(payload) {
		return nil, nil
	}
	if e := gjson.GetBytes(payload, "error"); e.Exists() && e.Type != gjson.Null {
		var apiErr APIError
		if err := json.Unmarshal([]byte(e.Raw), &apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = e.String()
		}
		return nil, apiError(0, &apiErr, payload)
	}

	var chunk Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, provider.NewError(provider.KindUnknownProvider, "decoding stream frame", provider.WithCause(err), provider.WithRaw(payload))
	}
	if u := convertUsage(chunk.Usage); u != nil {
		raw.Usage = *u
	}

	delta := &provider.ParsedResponse{}
	if len(chunk.Choices) == 0 {
		return delta, nil
	}
	choice := chunk.Choices[0]
	delta.Content = choice.Delta.Content
	delta.Reasoning = choice.Delta.ReasoningContent

	for _, tc := range choice.Delta.ToolCalls {
		if err := bufferToolCall(buf, tc); err != nil {
			return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool call delta", provider.WithCause(err), provider.WithRaw(payload))
		}
	}

	if choice.Delta.Refusal != "" {
		return delta, provider.NewError(provider.KindContentModeration, choice.Delta.Refusal)
	}
	if choice.FinishReason == nil {
		return delta, nil
	}
	if err := finishError(*choice.FinishReason); err != nil {
		return delta, err
	}
	if buf.Pending() > 0 {
		calls, err := buf.CompleteAll()
		if err != nil {
			return nil, provider.NewError(provider.KindUnknownProvider, "invalid tool call arguments", provider.WithCause(err), provider.WithRaw(payload))
		}
		delta.ToolCalls = calls
	}
	return delta, nil
}

// bufferToolCall opens a call on its first fragment, which names it, and
// appends arguments to calls that are already open.
func bufferToolCall(buf *toolcall.Buffer, tc ToolCallDelta) error {
	if tc.Index == nil {
		return toolcall.ErrMissingIndex
	}
	index := *tc.Index
	var name, args string
	if tc.Function != nil {
		name, args = tc.Function.Name, tc.Function.Arguments
	}
	if !buf.Has(index) && (tc.ID != "" || name != "") {
		if err := buf.Start(index, tc.ID, name); err != nil {
			return err
		}
	}
	return buf.Append(index, args)
}

func finishError(reason string) error {
	switch reason {
	case FinishLength:
		return provider.NewError(provider.KindMaxTokensExceeded, "model reached its maximum number of output tokens")
	case FinishContentFilter:
		return provider.NewError(provider.KindContentModeration, "output was blocked by the content filter")
	}
	return nil
}

// ClassifyError maps an error response to a kind using the vendor's error
// code and message. It returns nil when only the status code can tell.
func ClassifyError(status int, body []byte) *provider.Error {
	e := gjson.GetBytes(body, "error")
	if !e.IsObject() {
		return nil
	}
	var apiErr APIError
	if err := json.Unmarshal([]byte(e.Raw), &apiErr); err != nil {
		return nil
	}
	pe := classify(&apiErr)
	if pe == nil {
		return nil
	}
	pe.StatusCode = status
	pe.RawPayload = string(body)
	return pe
}

func apiError(status int, apiErr *APIError, raw ...[]byte) *provider.Error {
	pe := classify(apiErr)
	if pe == nil {
		if status == 0 {
			status = codeStatus(apiErr.Code)
		}
		pe = httpbase.StatusError(status, nil)
		pe.Message = apiErr.Message
	}
	if len(raw) > 0 {
		pe.RawPayload = string(raw[0])
	}
	return pe
}

func classify(apiErr *APIError) *provider.Error {
	code := strings.Trim(string(apiErr.Code), `"`)
	msg := apiErr.Message
	lower := strings.ToLower(msg)

	var kind provider.Kind
	switch {
	case code == "content_filter" || code == "content_policy_violation" ||
		strings.Contains(lower, "content management policy"):
		kind = provider.KindContentModeration
	case code == "model_not_found" || strings.Contains(lower, "model_not_found") ||
		(strings.Contains(lower, "model") && strings.Contains(lower, "does not exist")):
		kind = provider.KindMissingModel
	case code == "rate_limit_exceeded" || apiErr.Type == "rate_limit_error":
		kind = provider.KindRateLimited
	case strings.Contains(lower, "response_format") || strings.Contains(lower, "json_schema") ||
		strings.Contains(lower, "invalid schema"):
		kind = provider.KindStructuredGeneration
	case code == "unsupported_value" && (strings.Contains(lower, "tool") || strings.Contains(lower, "audio")),
		strings.Contains(lower, "does not support") && (strings.Contains(lower, "tool") || strings.Contains(lower, "audio") || strings.Contains(lower, "image")):
		kind = provider.KindModelDoesNotSupportMode
	case code == "image_parse_error" || code == "invalid_image_format" || code == "invalid_image_url" ||
		strings.Contains(lower, "invalid image") || strings.Contains(lower, "could not process image"):
		kind = provider.KindInvalidFile
	case strings.Contains(lower, "too large") || strings.Contains(lower, "exceeds the maximum"):
		kind = provider.KindFileTooLarge
	case code == "server_error" || apiErr.Type == "server_error":
		kind = provider.KindProviderInternal
	default:
		return nil
	}
	return provider.NewError(kind, msg)
}

func codeStatus(code json.RawMessage) int {
	n, err := strconv.Atoi(strings.Trim(string(code), `"`))
	if err != nil || n < 100 || n > 599 {
		return 0
	}
	return n
}

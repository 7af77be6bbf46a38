package bedrock

import json "github.com/goccy/go-json"

// Request is a Converse request body. The model travels in the URL.
type Request struct {
	Messages        []Message        `json:"messages"`
	System          []SystemBlock    `json:"system,omitempty"`
	InferenceConfig *InferenceConfig `json:"inferenceConfig,omitempty"`
	ToolConfig      *ToolConfig      `json:"toolConfig,omitempty"`
}

type SystemBlock struct {
	Text string `json:"text"`
}

type InferenceConfig struct {
	MaxTokens   *int     `json:"maxTokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a union, exactly one field is set.
type ContentBlock struct {
	Text             string            `json:"text,omitempty"`
	Image            *ImageBlock       `json:"image,omitempty"`
	Document         *DocumentBlock    `json:"document,omitempty"`
	ToolUse          *ToolUse          `json:"toolUse,omitempty"`
	ToolResult       *ToolResult       `json:"toolResult,omitempty"`
	ReasoningContent *ReasoningContent `json:"reasoningContent,omitempty"`
}

type ImageBlock struct {
	Format string `json:"format"`
	Source Source `json:"source"`
}

type DocumentBlock struct {
	Format string `json:"format"`
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// Source carries base64 bytes or an S3 location.
type Source struct {
	Bytes      string      `json:"bytes,omitempty"`
	S3Location *S3Location `json:"s3Location,omitempty"`
}

type S3Location struct {
	URI string `json:"uri"`
}

type ToolUse struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"`
}

type ToolResultContent struct {
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

type ReasoningContent struct {
	ReasoningText *ReasoningText `json:"reasoningText,omitempty"`
}

type ReasoningText struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

type ToolConfig struct {
	Tools []Tool `json:"tools"`
}

type Tool struct {
	ToolSpec ToolSpec `json:"toolSpec"`
}

type ToolSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	JSON map[string]any `json:"json"`
}

// Response is a Converse response.
type Response struct {
	Output     *Output `json:"output,omitempty"`
	StopReason string  `json:"stopReason,omitempty"`
	Usage      *Usage  `json:"usage,omitempty"`
}

type Output struct {
	Message *Message `json:"message,omitempty"`
}

type Usage struct {
	InputTokens           float64 `json:"inputTokens"`
	OutputTokens          float64 `json:"outputTokens"`
	TotalTokens           float64 `json:"totalTokens"`
	CacheReadInputTokens  float64 `json:"cacheReadInputTokens"`
	CacheWriteInputTokens float64 `json:"cacheWriteInputTokens"`
}

// Event is one ConverseStream event after framing, keyed by event type.
type Event struct {
	MessageStart      *MessageStart      `json:"messageStart,omitempty"`
	ContentBlockStart *ContentBlockStart `json:"contentBlockStart,omitempty"`
	ContentBlockDelta *ContentBlockDelta `json:"contentBlockDelta,omitempty"`
	ContentBlockStop  *ContentBlockStop  `json:"contentBlockStop,omitempty"`
	MessageStop       *MessageStop       `json:"messageStop,omitempty"`
	Metadata          *Metadata          `json:"metadata,omitempty"`
	Exception         *Exception         `json:"exception,omitempty"`
}

type MessageStart struct {
	Role string `json:"role"`
}

type ContentBlockStart struct {
	ContentBlockIndex *int `json:"contentBlockIndex"`
	Start             struct {
		ToolUse *struct {
			ToolUseID string `json:"toolUseId"`
			Name      string `json:"name"`
		} `json:"toolUse,omitempty"`
	} `json:"start"`
}

type ContentBlockDelta struct {
	ContentBlockIndex *int `json:"contentBlockIndex"`
	Delta             struct {
		Text    string `json:"text,omitempty"`
		ToolUse *struct {
			Input string `json:"input"`
		} `json:"toolUse,omitempty"`
		ReasoningContent *struct {
			Text      string `json:"text,omitempty"`
			Signature string `json:"signature,omitempty"`
		} `json:"reasoningContent,omitempty"`
	} `json:"delta"`
}

type ContentBlockStop struct {
	ContentBlockIndex *int `json:"contentBlockIndex"`
}

type MessageStop struct {
	StopReason string `json:"stopReason"`
}

type Metadata struct {
	Usage *Usage `json:"usage,omitempty"`
}

// Exception is an in-stream error, Type is the :exception-type header.
type Exception struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stop reasons.
const (
	StopEndTurn       = "end_turn"
	StopToolUse       = "tool_use"
	StopMaxTokens     = "max_tokens"
	StopSequence      = "stop_sequence"
	StopGuardrail     = "guardrail_intervened"
	StopContentFilter = "content_filtered"
)

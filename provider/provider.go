package provider

import (
	"context"
	"fmt"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

// Name identifies a vendor adapter.
type Name string

const (
	OpenAI       Name = "openai"
	Fireworks    Name = "fireworks"
	Anthropic    Name = "anthropic"
	GoogleVertex Name = "google"
	Bedrock      Name = "amazon_bedrock"
)

// Names lists every known provider in their default preference order.
func Names() []Name {
	return []Name{OpenAI, Anthropic, GoogleVertex, Bedrock, Fireworks}
}

func (n Name) String() string { return string(n) }

// ParseName converts a string into a known provider Name.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Provider is implemented once per vendor.
type Provider interface {
	// Name returns the vendor tag of this provider.
	Name() Name

	// RequiredEnvVars lists the environment variables needed to build the
	// provider from the environment.
	RequiredEnvVars() []string

	// SupportsModel reports whether this provider can serve model.
	SupportsModel(model string) bool

	// IsStreamable reports whether the model supports streaming with the given tools.
	// Callers must check it before choosing Stream over Complete.
	IsStreamable(model string, tools *tool.Set) bool

	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, call *Call, conv []messages.Message, options Options, output OutputFactory) (*StructuredOutput, error)

	// Stream runs a streaming completion. The returned channel yields Chunk
	// events, then exactly one Final or Failure event, then closes.
	Stream(ctx context.Context, call *Call, conv []messages.Message, options Options, output OutputFactory, partial PartialOutputFactory) (<-chan StreamEvent, error)

	// CheckValid sends a minimal probe to verify credentials and reachability.
	CheckValid(ctx context.Context) bool

	// IsSchemaSupportedForStructuredGeneration probes whether the vendor accepts
	// schema for native structured generation. Errors mean "not supported".
	IsSchemaSupportedForStructuredGeneration(ctx context.Context, taskName, model string, schema map[string]any) bool

	// StandardizeMessages converts a stored vendor-shaped history into the standard shape.
	StandardizeMessages(raw []json.RawMessage) ([]messages.Standard, error)
}

package provider

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/types"
	"github.com/go-openapi/strfmt"
)

// RawCompletion records what the vendor returned for one attempt, as far as
// it is known. It is updated while a response streams in and kept even when
// the attempt fails, so diagnostics always see the last known text and usage.
//
// A RawCompletion is written only by the goroutine driving its attempt.
// Read it after the call has returned or the stream has closed.
type RawCompletion struct {
	Response   string          `json:"response"`
	Usage      Usage           `json:"usage"`
	Region     string          `json:"region,omitempty"`
	StartedAt  strfmt.DateTime `json:"started_at"`
	FinishedAt strfmt.DateTime `json:"finished_at,omitempty"`
	Error      *Error          `json:"error,omitempty"`
}

// NewRawCompletion creates a RawCompletion started now.
func NewRawCompletion(region string) *RawCompletion {
	return &RawCompletion{Region: region, StartedAt: strfmt.DateTime(time.Now())}
}

// Finish stamps the completion as finished, recording err when it is an *Error.
func (r *RawCompletion) Finish(err error) {
	r.FinishedAt = strfmt.DateTime(time.Now())
	if e, ok := AsError(err); ok {
		r.Error = e
	}
}

// ParsedResponse is one streamed delta after vendor-specific parsing. An
// empty value means the frame carried no new content.
type ParsedResponse struct {
	Content   string
	Reasoning string
	ToolCalls []messages.ToolCallRequest
}

// IsEmpty reports whether the delta carries no new information.
func (p ParsedResponse) IsEmpty() bool {
	return p.Content == "" && p.Reasoning == "" && len(p.ToolCalls) == 0
}

// StructuredOutput is the externally visible result of a completion.
type StructuredOutput struct {
	Output         any                        `json:"output"`
	ReasoningSteps []string                   `json:"reasoning_steps,omitempty"`
	ToolCalls      []messages.ToolCallRequest `json:"tool_calls,omitempty"`
}

// Reasoning joins the reasoning steps.
func (s StructuredOutput) Reasoning() string {
	return strings.Join(s.ReasoningSteps, "\n")
}

// Call is the caller-owned context of one logical call. It carries the set
// of regions that already failed (so retries and follow-up calls in the same
// run skip them), a metadata sink and every RawCompletion produced along the
// way. A Call is safe for concurrent use.
type Call struct {
	mu          sync.Mutex
	excluded    map[string]struct{}
	completions []*RawCompletion
	metadata    types.Metadata
}

// NewCall creates an empty call context.
func NewCall() *Call {
	return &Call{excluded: make(map[string]struct{}), metadata: types.Metadata{}}
}

// ExcludeRegion marks region as unavailable for the rest of the call.
func (c *Call) ExcludeRegion(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.excluded[region] = struct{}{}
}

// IsRegionExcluded reports whether region was excluded.
func (c *Call) IsRegionExcluded(region string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.excluded[region]
	return ok
}

// ExcludedRegions returns the excluded regions in sorted order.
func (c *Call) ExcludedRegions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.excluded))
	for r := range c.excluded {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// AvailableRegions filters regions down to the ones that are not excluded, keeping order.
func (c *Call) AvailableRegions(regions []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		if _, ok := c.excluded[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// AddCompletion records a raw completion.
func (c *Call) AddCompletion(rc *RawCompletion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completions = append(c.completions, rc)
}

// Completions returns the raw completions recorded so far, oldest first.
func (c *Call) Completions() []*RawCompletion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.completions)
}

// LastCompletion returns the most recent raw completion, nil if there is none.
func (c *Call) LastCompletion() *RawCompletion {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.completions) == 0 {
		return nil
	}
	return c.completions[len(c.completions)-1]
}

// SetMetadata stores a metadata value.
func (c *Call) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Metadata returns a copy of the metadata.
func (c *Call) Metadata() types.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata.Clone()
}

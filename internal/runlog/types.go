package runlog

import (
	"context"

	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/types"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Record is everything known about one completion call once it finished.
type Record struct {
	RunID       uuid.UUID                  `json:"run_id"`
	Provider    provider.Name              `json:"provider"`
	Model       string                     `json:"model"`
	Stream      bool                       `json:"stream"`
	Output      *provider.StructuredOutput `json:"output,omitempty"`
	Usage       *provider.Usage            `json:"usage,omitempty"`
	Completions []*provider.RawCompletion  `json:"completions,omitempty"`
	Error       *provider.Error            `json:"error,omitempty"`
	Metadata    types.Metadata             `json:"metadata,omitempty"`
	StartedAt   strfmt.DateTime            `json:"started_at"`
	FinishedAt  strfmt.DateTime            `json:"finished_at"`
}

// Billable reports whether the run should be stored for billing: it
// succeeded, or it failed with an error that still consumed generation.
func (r Record) Billable() bool {
	return r.Error == nil || r.Error.StoreTaskRun
}

// ToJSON encodes the record.
func (r Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON decodes a record.
func FromJSON(data []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return r, err
}

// Publisher accepts finished run records.
type Publisher interface {
	Publish(context.Context, Record) error
}

// Handler processes records delivered to a subscription.
type Handler func(context.Context, Record)

// Broker gives access to named topics.
type Broker interface {
	Topic(context.Context, string) Topic
}

// Topic is a named stream of records.
type Topic interface {
	Publisher
	Subscribe(context.Context, Handler) (Subscription, error)
}

// Subscription is an active subscription to a topic.
type Subscription interface {
	ID() string
	Unsubscribe()
}

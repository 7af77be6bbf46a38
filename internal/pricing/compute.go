package pricing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/pkg/slogx"
	"github.com/casualjim/hoot/provider"
	"github.com/go-openapi/swag"
)

// Input is what Finalize needs to complete a usage.
type Input struct {
	Model      string
	Messages   []messages.Message
	Completion string
	Seed       *provider.Usage
}

// Finalize completes usage in place and prices it.
//
// Counts reported by the vendor are used as they are. When the vendor reported
// none, the seed counts apply and whatever is still missing is estimated.
// Pricing never fails the call: on error every cost is left nil.
func Finalize(ctx context.Context, c Counter, usage *provider.Usage, in Input) {
	if !usage.HasTokenCounts() {
		usage.ApplySeed(in.Seed)
		if usage.PromptTokenCount == nil {
			usage.PromptTokenCount = swag.Float64(c.PromptTokenCount(in.Messages))
		}
		if usage.CompletionTokenCount == nil {
			usage.CompletionTokenCount = swag.Float64(c.CompletionTokenCount(in.Completion))
		}
	}
	if usage.PromptImageCount == nil {
		if n := c.PromptImageCount(in.Messages); n > 0 {
			usage.PromptImageCount = swag.Int(n)
		}
	}
	if usage.PromptAudioTokenCount == nil {
		tokens, seconds := c.PromptAudio(in.Messages, in.Model)
		usage.PromptAudioTokenCount = tokens
		if usage.PromptAudioDurationSeconds == nil {
			usage.PromptAudioDurationSeconds = seconds
		}
	}

	usage.ForceUnknownCost()
	if err := c.CompletionCost(in.Model, usage); err != nil {
		usage.ForceUnknownCost()
		if errors.Is(err, ErrNoPrice) || errors.Is(err, ErrInvalidUsage) {
			slog.WarnContext(ctx, "cost unavailable", slogx.Model(in.Model), slogx.Error(err))
			return
		}
		slog.ErrorContext(ctx, "failed to compute cost", slogx.Model(in.Model), slogx.Error(err))
	}
}

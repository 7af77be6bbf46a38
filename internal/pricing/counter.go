package pricing

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/go-openapi/swag"
)

// Counter is the pricing side of a vendor adapter: it estimates the counts a
// vendor did not report and prices a usage.
type Counter interface {
	PromptTokenCount(conv []messages.Message) float64
	PromptImageCount(conv []messages.Message) int
	// PromptAudio returns the audio token count and duration of conv, nil when unknown.
	PromptAudio(conv []messages.Message, model string) (tokens, seconds *float64)
	CompletionTokenCount(completion string) float64
	// CompletionCost fills the cost fields of usage for model.
	CompletionCost(model string, usage *provider.Usage) error
}

// Heuristic is the Counter shared by all adapters, configured per vendor.
type Heuristic struct {
	// Provider is the price table section.
	Provider provider.Name
	// Table defaults to the embedded table.
	Table *Table
	// CharsPerToken defaults to 4.
	CharsPerToken float64
	// MessageOverhead and RequestOverhead add the boilerplate tokens chat
	// templates spend per message and per request.
	MessageOverhead float64
	RequestOverhead float64
	// BillCharacters keeps token estimates fractional, for vendors that bill characters.
	BillCharacters bool
}

func (h Heuristic) table() *Table {
	if h.Table != nil {
		return h.Table
	}
	return Default()
}

func (h Heuristic) tokens(chars int) float64 {
	per := h.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := float64(chars) / per
	if h.BillCharacters {
		return n
	}
	return math.Ceil(n)
}

// PromptTokenCount estimates the prompt tokens from the serialized text of conv.
func (h Heuristic) PromptTokenCount(conv []messages.Message) float64 {
	chars := 0
	for _, msg := range conv {
		chars += utf8.RuneCountInString(msg.Text())
		for _, call := range msg.AllToolCallRequests() {
			chars += utf8.RuneCountInString(call.ToolName) + utf8.RuneCountInString(call.ArgumentsJSON())
		}
		for _, res := range msg.ToolCallResults() {
			chars += utf8.RuneCountInString(res.Output())
		}
	}
	total := h.tokens(chars)
	if len(conv) > 0 {
		total += float64(len(conv))*h.MessageOverhead + h.RequestOverhead
	}
	return total
}

// PromptImageCount counts the image parts of conv.
func (h Heuristic) PromptImageCount(conv []messages.Message) int {
	n := 0
	for _, msg := range conv {
		for _, f := range msg.Files() {
			if f.IsImage() {
				n++
			}
		}
	}
	return n
}

// PromptAudio derives audio tokens from the clip durations. Both results are
// nil when there is no audio or when a clip has no known duration.
func (h Heuristic) PromptAudio(conv []messages.Message, model string) (tokens, seconds *float64) {
	var total float64
	found := false
	for _, msg := range conv {
		for _, f := range msg.Files() {
			if !f.IsAudio() {
				continue
			}
			if f.DurationSeconds == nil {
				return nil, nil
			}
			total += *f.DurationSeconds
			found = true
		}
	}
	if !found {
		return nil, nil
	}

	price, err := h.table().Lookup(string(h.Provider), model)
	if err != nil || price.AudioTokensPerSecond == nil {
		return nil, swag.Float64(total)
	}
	return swag.Float64(total * *price.AudioTokensPerSecond), swag.Float64(total)
}

// CompletionTokenCount estimates the tokens of the completion text.
func (h Heuristic) CompletionTokenCount(completion string) float64 {
	return h.tokens(utf8.RuneCountInString(completion))
}

// CompletionCost prices usage. A cost is only set when its count is known.
func (h Heuristic) CompletionCost(model string, usage *provider.Usage) error {
	price, err := h.table().Lookup(string(h.Provider), model)
	if err != nil {
		return err
	}
	if price.ContextWindow > 0 && usage.ModelContextWindowSize == nil {
		usage.ModelContextWindowSize = swag.Int(price.ContextWindow)
	}
	if err := validate(usage); err != nil {
		return err
	}

	promptRate, completionRate, imageRate := price.Prompt, price.Completion, price.Image
	if price.ThresholdTokens != nil && usage.PromptTokenCount != nil && *usage.PromptTokenCount > *price.ThresholdTokens {
		if price.PromptOverThreshold != nil {
			promptRate = *price.PromptOverThreshold
		}
		if price.CompletionOverThreshold != nil {
			completionRate = *price.CompletionOverThreshold
		}
		if price.ImageOverThreshold != nil {
			imageRate = price.ImageOverThreshold
		}
	}

	if usage.PromptTokenCount != nil {
		prompt := *usage.PromptTokenCount
		cached := swag.Float64Value(usage.PromptTokenCountCached)
		if cached > prompt {
			return fmt.Errorf("%w: %v cached of %v prompt tokens", ErrInvalidUsage, cached, prompt)
		}
		cachedRate := promptRate
		if price.CachedPrompt != nil {
			cachedRate = *price.CachedPrompt
		}
		usage.PromptCostUSD = swag.Float64(((prompt-cached)*promptRate + cached*cachedRate) / 1e6)
	}

	if usage.CompletionTokenCount != nil {
		usage.CompletionCostUSD = swag.Float64(*usage.CompletionTokenCount * completionRate / 1e6)
	}

	if usage.PromptImageCount != nil {
		cost := 0.0
		if imageRate != nil {
			cost = float64(*usage.PromptImageCount) * *imageRate
		}
		usage.PromptImageCostUSD = swag.Float64(cost)
	}

	if usage.PromptAudioTokenCount != nil {
		cost := 0.0
		if price.Audio != nil {
			cost = *usage.PromptAudioTokenCount * *price.Audio / 1e6
		}
		usage.PromptAudioCostUSD = swag.Float64(cost)
	}

	if total := usage.TotalCostUSD(); total != nil && (math.IsInf(*total, 0) || math.IsNaN(*total)) {
		return fmt.Errorf("%w: cost overflow", ErrInvalidUsage)
	}
	return nil
}

func validate(usage *provider.Usage) error {
	counts := map[string]*float64{
		"prompt_token_count":            usage.PromptTokenCount,
		"prompt_token_count_cached":     usage.PromptTokenCountCached,
		"completion_token_count":        usage.CompletionTokenCount,
		"reasoning_token_count":         usage.ReasoningTokenCount,
		"prompt_audio_token_count":      usage.PromptAudioTokenCount,
		"prompt_audio_duration_seconds": usage.PromptAudioDurationSeconds,
	}
	for name, v := range counts {
		if v != nil && (*v < 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s=%v", ErrInvalidUsage, name, *v)
		}
	}
	if usage.PromptImageCount != nil && *usage.PromptImageCount < 0 {
		return fmt.Errorf("%w: prompt_image_count=%d", ErrInvalidUsage, *usage.PromptImageCount)
	}
	return nil
}

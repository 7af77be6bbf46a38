package provider

// Usage holds the token, image and audio counts of one completion and the
// USD cost derived from each of them.
//
// A nil count means "unknown". A cost is only ever computed from a known
// count, so a nil count always has a nil cost next to it. Zero is a real
// value and never stands in for unknown.
type Usage struct {
	PromptTokenCount       *float64 `json:"prompt_token_count,omitempty"`
	PromptTokenCountCached *float64 `json:"prompt_token_count_cached,omitempty"`
	PromptCostUSD          *float64 `json:"prompt_cost_usd,omitempty"`

	CompletionTokenCount *float64 `json:"completion_token_count,omitempty"`
	ReasoningTokenCount  *float64 `json:"reasoning_token_count,omitempty"`
	CompletionCostUSD    *float64 `json:"completion_cost_usd,omitempty"`

	PromptImageCount   *int     `json:"prompt_image_count,omitempty"`
	PromptImageCostUSD *float64 `json:"prompt_image_cost_usd,omitempty"`

	PromptAudioTokenCount      *float64 `json:"prompt_audio_token_count,omitempty"`
	PromptAudioDurationSeconds *float64 `json:"prompt_audio_duration_seconds,omitempty"`
	PromptAudioCostUSD         *float64 `json:"prompt_audio_cost_usd,omitempty"`

	ModelContextWindowSize *int `json:"model_context_window_size,omitempty"`
}

// HasTokenCounts reports whether the vendor (or a seed) provided any token count.
func (u *Usage) HasTokenCounts() bool {
	if u == nil {
		return false
	}
	return u.PromptTokenCount != nil || u.CompletionTokenCount != nil || u.PromptTokenCountCached != nil
}

// ApplySeed copies the counts of seed into u when u carries no token counts.
// Reported counts always win over seeds.
func (u *Usage) ApplySeed(seed *Usage) {
	if seed == nil || u.HasTokenCounts() {
		return
	}
	u.PromptTokenCount = copyFloat(seed.PromptTokenCount)
	u.PromptTokenCountCached = copyFloat(seed.PromptTokenCountCached)
	u.CompletionTokenCount = copyFloat(seed.CompletionTokenCount)
	u.ReasoningTokenCount = copyFloat(seed.ReasoningTokenCount)
	if u.PromptImageCount == nil && seed.PromptImageCount != nil {
		v := *seed.PromptImageCount
		u.PromptImageCount = &v
	}
	if u.PromptAudioTokenCount == nil {
		u.PromptAudioTokenCount = copyFloat(seed.PromptAudioTokenCount)
	}
	if u.PromptAudioDurationSeconds == nil {
		u.PromptAudioDurationSeconds = copyFloat(seed.PromptAudioDurationSeconds)
	}
}

// ForceUnknownCost sets every cost to nil. Used when an error makes cost
// unknowable even though some counts are known: a failed price lookup, or a
// vendor error that ends the attempt without a billable completion.
func (u *Usage) ForceUnknownCost() {
	u.PromptCostUSD = nil
	u.CompletionCostUSD = nil
	u.PromptImageCostUSD = nil
	u.PromptAudioCostUSD = nil
}

// TotalCostUSD sums the computed costs. It is nil when the prompt or the
// completion cost is unknown, or when an image or audio count is known
// without its cost.
func (u *Usage) TotalCostUSD() *float64 {
	if u == nil || u.PromptCostUSD == nil || u.CompletionCostUSD == nil {
		return nil
	}
	total := *u.PromptCostUSD + *u.CompletionCostUSD
	if u.PromptImageCount != nil && *u.PromptImageCount > 0 {
		if u.PromptImageCostUSD == nil {
			return nil
		}
		total += *u.PromptImageCostUSD
	}
	if u.PromptAudioTokenCount != nil && *u.PromptAudioTokenCount > 0 {
		if u.PromptAudioCostUSD == nil {
			return nil
		}
		total += *u.PromptAudioCostUSD
	}
	return &total
}

// Clone returns a deep copy of u.
func (u *Usage) Clone() *Usage {
	if u == nil {
		return nil
	}
	c := Usage{
		PromptTokenCount:           copyFloat(u.PromptTokenCount),
		PromptTokenCountCached:     copyFloat(u.PromptTokenCountCached),
		PromptCostUSD:              copyFloat(u.PromptCostUSD),
		CompletionTokenCount:       copyFloat(u.CompletionTokenCount),
		ReasoningTokenCount:        copyFloat(u.ReasoningTokenCount),
		CompletionCostUSD:          copyFloat(u.CompletionCostUSD),
		PromptImageCostUSD:         copyFloat(u.PromptImageCostUSD),
		PromptAudioTokenCount:      copyFloat(u.PromptAudioTokenCount),
		PromptAudioDurationSeconds: copyFloat(u.PromptAudioDurationSeconds),
		PromptAudioCostUSD:         copyFloat(u.PromptAudioCostUSD),
	}
	if u.PromptImageCount != nil {
		v := *u.PromptImageCount
		c.PromptImageCount = &v
	}
	if u.ModelContextWindowSize != nil {
		v := *u.ModelContextWindowSize
		c.ModelContextWindowSize = &v
	}
	return &c
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Package pricing turns usage counts into USD cost and estimates counts a
// vendor did not report.
package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var defaultPrices []byte

var (
	// ErrNoPrice is returned when the table has no entry for a model.
	ErrNoPrice = errors.New("pricing: no price for model")
	// ErrInvalidUsage is returned for negative, NaN or infinite counts.
	ErrInvalidUsage = errors.New("pricing: invalid usage")
)

// Price is the price sheet of one model. Token rates are USD per million tokens.
type Price struct {
	Prompt       float64  `yaml:"prompt"`
	CachedPrompt *float64 `yaml:"cached_prompt,omitempty"`
	Completion   float64  `yaml:"completion"`

	// ThresholdTokens switches to the over-threshold rates once the prompt is larger.
	ThresholdTokens         *float64 `yaml:"threshold_tokens,omitempty"`
	PromptOverThreshold     *float64 `yaml:"prompt_over_threshold,omitempty"`
	CompletionOverThreshold *float64 `yaml:"completion_over_threshold,omitempty"`

	// Image and ImageOverThreshold are USD per image. When both are nil images
	// are billed as prompt tokens.
	Image              *float64 `yaml:"image,omitempty"`
	ImageOverThreshold *float64 `yaml:"image_over_threshold,omitempty"`

	// Audio is the rate for audio tokens, nil when they are billed as prompt tokens.
	Audio                *float64 `yaml:"audio,omitempty"`
	AudioTokensPerSecond *float64 `yaml:"audio_tokens_per_second,omitempty"`

	ContextWindow int `yaml:"context_window,omitempty"`
}

// Table maps provider name and model to a price sheet.
type Table struct {
	prices map[string]map[string]Price
}

// Parse decodes a YAML price table.
func Parse(data []byte) (*Table, error) {
	var prices map[string]map[string]Price
	if err := yaml.Unmarshal(data, &prices); err != nil {
		return nil, fmt.Errorf("parsing price table: %w", err)
	}
	return &Table{prices: prices}, nil
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Parse(defaultPrices)
})

// Default returns the embedded price table.
func Default() *Table {
	t, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the price of model. Dated or suffixed identifiers fall back
// to the longest known model name they extend ("gpt-4o-2024-08-06" uses "gpt-4o").
func (t *Table) Lookup(provider, model string) (Price, error) {
	models, ok := t.prices[provider]
	if !ok {
		return Price{}, fmt.Errorf("%w: %s/%s", ErrNoPrice, provider, model)
	}
	if p, ok := models[model]; ok {
		return p, nil
	}

	best := ""
	for name := range models {
		if len(name) <= len(best) || !strings.HasPrefix(model, name) {
			continue
		}
		switch model[len(name)] {
		case '-', '@', ':':
			best = name
		}
	}
	if best == "" {
		return Price{}, fmt.Errorf("%w: %s/%s", ErrNoPrice, provider, model)
	}
	return models[best], nil
}

// Models returns the priced models of provider in sorted order.
func (t *Table) Models(provider string) []string {
	names := make([]string, 0, len(t.prices[provider]))
	for name := range t.prices[provider] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

package provider

import (
	"encoding/hex"
	"errors"
	"strings"
	"unicode"

	"github.com/casualjim/hoot/pkg/jsonx"
	"github.com/casualjim/hoot/tool"
	"github.com/casualjim/hoot/types"
	"github.com/fogfish/opts"
	"github.com/go-openapi/swag"
	"github.com/zeebo/blake3"
)

// Options are the caller-supplied generation parameters of one call.
// They are immutable once built, use NewOptions to create them.
type Options struct {
	// Model is the vendor model identifier.
	Model string

	// Temperature is the sampling temperature, the vendor default applies when nil.
	Temperature *float64

	// MaxTokens caps the number of generated tokens, the vendor default applies when nil.
	MaxTokens *int

	// EnabledTools are the tools the model may call, in order.
	EnabledTools *tool.Set

	// StructuredGeneration asks the vendor to constrain output to OutputSchema.
	StructuredGeneration bool

	// OutputSchema is the JSON schema of the expected output.
	OutputSchema map[string]any

	// TaskName derives the deterministic structured-output identifier.
	TaskName string

	// Metadata is passed through untouched for logging and run records.
	Metadata types.Metadata

	// SeedUsage holds counts known before the call (e.g. prompt tokens computed
	// upstream). They are used only when the vendor reports no usage at all.
	SeedUsage *Usage

	// Prevents unkeyed literals
	_ struct{}
}

// Option configures Options.
type Option = opts.Option[Options]

// TaskName sets the task name used to name structured outputs.
var TaskName = opts.ForName[Options, string]("TaskName")

// SeedUsage sets the seed usage counts.
var SeedUsage = opts.ForName[Options, *Usage]("SeedUsage")

// Temperature sets the sampling temperature.
func Temperature(v float64) Option {
	return opts.Type[Options](func(o *Options) error {
		if v < 0 || v > 2 {
			return errors.New("temperature must be between 0 and 2")
		}
		o.Temperature = swag.Float64(v)
		return nil
	})
}

// MaxTokens sets the maximum number of output tokens.
func MaxTokens(n int) Option {
	return opts.Type[Options](func(o *Options) error {
		if n <= 0 {
			return errors.New("max tokens must be positive")
		}
		o.MaxTokens = swag.Int(n)
		return nil
	})
}

// Tools enables the given tools in order.
func Tools(specs ...tool.Spec) Option {
	return opts.Type[Options](func(o *Options) error {
		if o.EnabledTools == nil {
			o.EnabledTools = tool.NewSet()
		}
		for _, s := range specs {
			o.EnabledTools.Add(s)
		}
		return nil
	})
}

// StructuredSchema enables native structured generation against schema.
func StructuredSchema(schema map[string]any) Option {
	return opts.Type[Options](func(o *Options) error {
		if len(schema) == 0 {
			return errors.New("structured output requires a schema")
		}
		o.StructuredGeneration = true
		o.OutputSchema = schema
		return nil
	})
}

// OutputSchema sets the expected output schema without asking the vendor to enforce it.
func OutputSchema(schema map[string]any) Option {
	return opts.Type[Options](func(o *Options) error {
		o.OutputSchema = schema
		return nil
	})
}

// Meta adds a metadata entry.
func Meta(key string, value any) Option {
	return opts.Type[Options](func(o *Options) error {
		if o.Metadata == nil {
			o.Metadata = types.Metadata{}
		}
		o.Metadata[key] = value
		return nil
	})
}

// NewOptions builds Options for model.
func NewOptions(model string, options ...Option) (Options, error) {
	o := Options{Model: model}
	if err := opts.Apply(&o, options); err != nil {
		return Options{}, err
	}
	if strings.TrimSpace(o.Model) == "" {
		return Options{}, errors.New("model is required")
	}
	return o, nil
}

// HasTools reports whether any tool is enabled.
func (o Options) HasTools() bool {
	return o.EnabledTools.Len() > 0
}

// TemperatureOr returns the temperature or fallback.
func (o Options) TemperatureOr(fallback float64) float64 {
	if o.Temperature == nil {
		return fallback
	}
	return swag.Float64Value(o.Temperature)
}

// MaxTokensOr returns the max tokens or fallback.
func (o Options) MaxTokensOr(fallback int) int {
	if o.MaxTokens == nil {
		return fallback
	}
	return *o.MaxTokens
}

const maxSchemaNameLen = 64

// OutputSchemaName returns the identifier sent to vendors that name structured
// outputs. It is the slugified task name followed by a digest of the schema,
// so the same task and schema always produce the same name.
func (o Options) OutputSchemaName() string {
	slug := slugify(o.TaskName)
	if slug == "" {
		slug = "output"
	}

	digest := "00000000"
	if canonical, err := jsonx.Canonical(o.OutputSchema); err == nil {
		sum := blake3.Sum256(canonical)
		digest = hex.EncodeToString(sum[:4])
	}

	if limit := maxSchemaNameLen - len(digest) - 1; len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "_")
	}
	return slug + "_" + digest
}

func slugify(s string) string {
	var sb strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(sb.String(), "_")
}

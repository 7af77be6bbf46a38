package provider

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"
)

// OutputFactory turns the complete content string of a completion into the
// output value. It returns an *Error of kind KindJSONSchemaValidation when the
// content does not validate.
type OutputFactory func(content string) (any, error)

// PartialOutputFactory shapes the partially aggregated value of a stream.
// Errors are not fatal, the chunk is simply not emitted.
type PartialOutputFactory func(partial any) (any, error)

// JSONOutput parses content as JSON. Markdown code fences around the document are tolerated.
func JSONOutput(content string) (any, error) {
	raw := StripCodeFence(content)
	if raw == "" {
		return nil, NewError(KindJSONSchemaValidation, "model returned an empty response")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, NewError(KindJSONSchemaValidation, "model returned invalid JSON", WithCause(err), WithRaw([]byte(content)))
	}
	return v, nil
}

// TextOutput returns the content unchanged.
func TextOutput(content string) (any, error) {
	return content, nil
}

// PassthroughPartial returns the partial value unchanged.
func PassthroughPartial(partial any) (any, error) {
	return partial, nil
}

// SchemaOutput returns an OutputFactory that parses content as JSON and
// validates it against schema.
func SchemaOutput(schema map[string]any) (OutputFactory, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compiling output schema: %w", err)
	}

	return func(content string) (any, error) {
		v, err := JSONOutput(content)
		if err != nil {
			return nil, err
		}
		result, err := compiled.Validate(gojsonschema.NewGoLoader(v))
		if err != nil {
			return nil, NewError(KindJSONSchemaValidation, "validating output", WithCause(err))
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, NewError(KindJSONSchemaValidation, strings.Join(msgs, "; "), WithRaw([]byte(content)))
		}
		return v, nil
	}, nil
}

// StripCodeFence removes a surrounding markdown code fence (``` or ```json) and whitespace.
func StripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// IsValidationError reports whether err is an output validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrJSONSchemaValidation)
}

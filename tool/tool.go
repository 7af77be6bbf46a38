package tool

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
	"regexp"

	"github.com/casualjim/hoot/pkg/jsonx"
	"github.com/casualjim/hoot/pkg/reflectx"
	"github.com/casualjim/hoot/pkg/stdx"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Spec is the definition of a tool that is exposed to a model.
type Spec struct {
	Name         string
	Description  string
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// Option configures a Spec.
type Option = opts.Option[Spec]

// Name overrides the tool name, mostly useful with FromFunc.
var Name = opts.ForName[Spec, string]("Name")

// Description sets the human readable description sent to the model.
var Description = opts.ForName[Spec, string]("Description")

// InputSchema sets the input schema directly.
var InputSchema = opts.ForName[Spec, *jsonschema.Schema]("InputSchema")

// OutputSchema sets the output schema directly.
var OutputSchema = opts.ForName[Spec, *jsonschema.Schema]("OutputSchema")

// InputOf reflects the input schema from T.
func InputOf[T any]() Option {
	return opts.Type[Spec](func(s *Spec) error {
		s.InputSchema = SchemaFor[T]()
		return nil
	})
}

// OutputOf reflects the output schema from T.
func OutputOf[T any]() Option {
	return opts.Type[Spec](func(s *Spec) error {
		s.OutputSchema = SchemaFor[T]()
		return nil
	})
}

// SchemaFor reflects a JSON schema for T without references or a $schema version.
func SchemaFor[T any]() *jsonschema.Schema {
	schema := reflector.Reflect(new(T))
	schema.Version = ""
	return schema
}

// New creates a Spec. Tool names must match ^[a-zA-Z0-9_-]{1,64}$, which is
// the intersection of what the supported vendors accept.
func New(name string, options ...Option) (Spec, error) {
	spec := Spec{Name: name}
	if err := opts.Apply(&spec, options); err != nil {
		return Spec{}, err
	}
	if !validName.MatchString(spec.Name) {
		return Spec{}, fmt.Errorf("invalid tool name %q", spec.Name)
	}
	return spec, nil
}

// Must is New that panics on error.
func Must(name string, options ...Option) Spec {
	return stdx.Must1(New(name, options...))
}

// FromFunc declares the tool implemented by fn, a function shaped like
// func([context.Context,] In) (Out, error). The tool is named after the
// function and its schemas are reflected from In and Out. Options are
// applied afterwards and win.
func FromFunc(fn any, options ...Option) (Spec, error) {
	if !reflectx.IsFunction(fn) {
		return Spec{}, errors.New("tool: provided value is not a function")
	}
	spec := Spec{Name: reflectx.FunctionName(fn)}
	if in := reflectx.InputType(fn); in != nil {
		spec.InputSchema = schemaForType(in)
	}
	if out := reflectx.OutputType(fn); out != nil {
		spec.OutputSchema = schemaForType(out)
	}
	return New(spec.Name, append([]Option{InputSchema(spec.InputSchema), OutputSchema(spec.OutputSchema)}, options...)...)
}

func schemaForType(t reflect.Type) *jsonschema.Schema {
	schema := reflector.ReflectFromType(t)
	schema.Version = ""
	return schema
}

// InputSchemaMap returns the input schema as a dynamic JSON object. Tools
// without an input schema take an empty object.
func (s Spec) InputSchemaMap() (map[string]any, error) {
	schema := s.InputSchema
	if schema == nil {
		schema = &jsonschema.Schema{
			Type:       "object",
			Properties: orderedmap.New[string, *jsonschema.Schema](),
		}
	}
	m, err := jsonx.ToDynamicJSON(schema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: failed to convert input schema: %w", s.Name, err)
	}
	if _, ok := m["properties"]; !ok && m["type"] == "object" {
		m["properties"] = map[string]any{}
	}
	return m, nil
}

// Set is an ordered set of tools keyed by name.
type Set struct {
	tools *orderedmap.OrderedMap[string, Spec]
}

// NewSet creates a Set containing specs in order.
func NewSet(specs ...Spec) *Set {
	s := &Set{tools: orderedmap.New[string, Spec]()}
	for _, spec := range specs {
		s.Add(spec)
	}
	return s
}

// Add inserts spec, replacing a tool with the same name in place.
func (s *Set) Add(spec Spec) {
	s.tools.Set(spec.Name, spec)
}

// Get returns the tool with the given name.
func (s *Set) Get(name string) (Spec, bool) {
	if s == nil {
		return Spec{}, false
	}
	return s.tools.Get(name)
}

// Len returns the number of tools, a nil set is empty.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.tools.Len()
}

// All iterates the tools in insertion order.
func (s *Set) All() iter.Seq[Spec] {
	return func(yield func(Spec) bool) {
		if s == nil {
			return
		}
		for pair := s.tools.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Value) {
				return
			}
		}
	}
}

// Names returns the tool names in insertion order.
func (s *Set) Names() []string {
	names := make([]string, 0, s.Len())
	for spec := range s.All() {
		names = append(names, spec.Name)
	}
	return names
}

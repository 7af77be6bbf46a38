package jsonstream

import (
	"reflect"
	"strings"
)

// Extends reports whether next is prev with zero or more parts filled in
// further: object keys are kept, arrays only grow, strings only grow at the
// end and scalars stay equal.
func Extends(prev, next any) bool {
	switch p := prev.(type) {
	case nil:
		return next == nil
	case map[string]any:
		n, ok := next.(map[string]any)
		if !ok {
			return false
		}
		for k, pv := range p {
			nv, ok := n[k]
			if !ok || !Extends(pv, nv) {
				return false
			}
		}
		return true
	case []any:
		n, ok := next.([]any)
		if !ok || len(n) < len(p) {
			return false
		}
		for i := range p {
			if !Extends(p[i], n[i]) {
				return false
			}
		}
		return true
	case string:
		n, ok := next.(string)
		return ok && strings.HasPrefix(n, p)
	default:
		return reflect.DeepEqual(prev, next)
	}
}

// Aggregator accumulates streamed content and reports the partial value each
// time it changes. Values that would retract something already reported are skipped.
type Aggregator struct {
	content strings.Builder
	last    any
	has     bool
}

// Write appends a content delta. It returns the new partial value and true
// when the value changed.
func (a *Aggregator) Write(delta string) (any, bool) {
	if delta == "" {
		return a.last, false
	}
	a.content.WriteString(delta)

	res := Parse(a.content.String())
	if res.Err != nil || !res.OK {
		return a.last, false
	}
	if a.has && (!Extends(a.last, res.Value) || reflect.DeepEqual(a.last, res.Value)) {
		return a.last, false
	}
	a.last, a.has = res.Value, true
	return a.last, true
}

// Content returns everything written so far.
func (a *Aggregator) Content() string {
	return a.content.String()
}

// Value returns the last reported partial value.
func (a *Aggregator) Value() (any, bool) {
	return a.last, a.has
}

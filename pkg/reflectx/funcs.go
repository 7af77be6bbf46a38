// Package reflectx inspects Go functions so tools can be declared from them.
package reflectx

import (
	"context"
	"reflect"
	"runtime"
	"strings"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func IsFunction(fn any) bool {
	if fn == nil {
		return false
	}
	return reflect.TypeOf(fn).Kind() == reflect.Func
}

// FunctionName returns the name of fn. Named function types use the type
// name, functions and methods use the symbol name without its package and
// receiver. Anonymous functions get their compiler name (func1, func2, ...).
func FunctionName(fn any) string {
	if !IsFunction(fn) {
		return ""
	}

	val := reflect.ValueOf(fn)
	typ := val.Type()
	if typ.Name() != "" {
		return typ.String()
	}

	f := runtime.FuncForPC(val.Pointer())
	if f == nil {
		return typ.String()
	}
	name := f.Name()
	if lastDot := strings.LastIndex(name, "."); lastDot >= 0 {
		name = name[lastDot+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// InputType returns the type of the first parameter of fn that is not a
// context.Context, or nil when there is none.
func InputType(fn any) reflect.Type {
	if !IsFunction(fn) {
		return nil
	}
	typ := reflect.TypeOf(fn)
	for i := range typ.NumIn() {
		if in := typ.In(i); !in.Implements(contextType) {
			return in
		}
	}
	return nil
}

// OutputType returns the type of the first result of fn that is not an
// error, or nil when there is none.
func OutputType(fn any) reflect.Type {
	if !IsFunction(fn) {
		return nil
	}
	typ := reflect.TypeOf(fn)
	for i := range typ.NumOut() {
		if out := typ.Out(i); out != errorType {
			return out
		}
	}
	return nil
}

// Package stdx holds small generic helpers that the standard library lacks.
package stdx

// Must1 returns v, panicking if err is not nil. Used for package-level
// initialization of values that are embedded in the binary and cannot fail
// outside of programmer error.
func Must1[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

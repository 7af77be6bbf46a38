// Package types provides small value types shared across provider packages.
package types

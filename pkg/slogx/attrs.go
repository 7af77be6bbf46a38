// Package slogx contains slog attribute helpers shared by the providers and the CLI.
package slogx

import (
	"fmt"
	"log/slog"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyProvider is the key for the provider name attribute.
	KeyProvider = "provider"
	// KeyModel is the key for the model identifier attribute.
	KeyModel = "model"
	// KeyRegion is the key for the serving region attribute.
	KeyRegion = "region"
)

// Error returns a slog.Attr for the provided error under the "error" key.
// A nil error is rendered as an empty string so callers can log unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// ByteString creates a slog.Attr with the string form of a byte slice.
// Raw vendor payloads are logged this way.
func ByteString(key string, value []byte) slog.Attr {
	return slog.String(key, string(value))
}

// Stringer creates a slog.Attr with the string representation of value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// LoggerName returns an attribute for the logger name.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Provider returns an attribute naming the provider that handled a call.
func Provider(name fmt.Stringer) slog.Attr {
	return slog.String(KeyProvider, name.String())
}

// Model returns an attribute for a model identifier.
func Model(model string) slog.Attr {
	return slog.String(KeyModel, model)
}

// Region returns an attribute for a serving region. Empty regions are kept
// so single-endpoint vendors still log a stable shape.
func Region(region string) slog.Attr {
	return slog.String(KeyRegion, region)
}

package httpbase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/casualjim/hoot/internal/httpx"
	"github.com/casualjim/hoot/provider"
	"github.com/tidwall/gjson"
)

type phase int

const (
	phaseConnect phase = iota
	phaseBody
)

// classifyTransport maps a failed round trip or body read to a network kind.
func classifyTransport(err error, p phase) *provider.Error {
	var netErr net.Error
	var dnsErr *net.DNSError
	var opErr *net.OpError

	switch {
	case errors.Is(err, httpx.ErrIdleTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return provider.NewError(provider.KindReadTimeout, "", provider.WithCause(err))
	case errors.As(err, &dnsErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &opErr) && opErr.Op == "dial":
		return provider.NewError(provider.KindConnectError, "", provider.WithCause(err))
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return provider.NewError(provider.KindRemoteDisconnect, "", provider.WithCause(err))
	}
	if p == phaseConnect {
		return provider.NewError(provider.KindConnectError, "", provider.WithCause(err))
	}
	return provider.NewError(provider.KindRemoteDisconnect, "", provider.WithCause(err))
}

// StatusError classifies an error response by status code alone. Adapters
// use it for the statuses their own payload parsing does not cover.
func StatusError(status int, body []byte) *provider.Error {
	msg := ErrorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	var kind provider.Kind
	switch {
	case status == http.StatusTooManyRequests:
		kind = provider.KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		kind = provider.KindReadTimeout
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = provider.KindProviderUnavailable
	case status == http.StatusNotFound:
		kind = provider.KindMissingModel
	case status == http.StatusRequestEntityTooLarge:
		kind = provider.KindFileTooLarge
	case status >= 400 && status < 500:
		kind = provider.KindBadRequest
	case status >= 500:
		kind = provider.KindProviderInternal
	default:
		kind = provider.KindUnknownProvider
	}
	pe := provider.NewError(kind, msg, provider.WithStatus(status), provider.WithRaw(body))
	if status == http.StatusServiceUnavailable {
		pe.Failover = true
	}
	return pe
}

// ErrorMessage extracts the human message of the common vendor error shapes:
// {"error":{"message":...}}, {"error":"..."}, {"message":...} and Vertex arrays.
func ErrorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "0.error.message", "message", "Message", "detail"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if v := gjson.GetBytes(body, "error"); v.Type == gjson.String {
		return v.String()
	}
	return ""
}

// asProviderError converts err into a *provider.Error, wrapping foreign errors as unknown.
func asProviderError(err error) *provider.Error {
	if pe, ok := provider.AsError(err); ok {
		return pe
	}
	return provider.NewError(provider.KindUnknownProvider, err.Error(), provider.WithCause(err))
}

func decodeError(err error, body []byte) *provider.Error {
	return provider.NewError(provider.KindUnknownProvider, fmt.Sprintf("decoding response: %v", err), provider.WithCause(err), provider.WithRaw(body))
}

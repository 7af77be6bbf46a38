// Package httpx builds the HTTP transport used to talk to model vendors.
package httpx

import (
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultDialTimeout           = 10 * time.Second
	DefaultKeepAlive             = 30 * time.Second
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultResponseHeaderTimeout = 120 * time.Second
	DefaultStreamIdleTimeout     = 60 * time.Second

	maxErrorBody = 64 << 10
)

// Timeouts configures the transport. Zero values use the defaults.
type Timeouts struct {
	Dial           time.Duration
	ResponseHeader time.Duration
	StreamIdle     time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Dial <= 0 {
		t.Dial = DefaultDialTimeout
	}
	if t.ResponseHeader <= 0 {
		t.ResponseHeader = DefaultResponseHeaderTimeout
	}
	if t.StreamIdle <= 0 {
		t.StreamIdle = DefaultStreamIdleTimeout
	}
	return t
}

// NewClient creates a client for vendor APIs. There is no overall client
// timeout since streamed bodies can legitimately take minutes, the header
// timeout and the idle reader bound each phase instead.
func NewClient(timeouts Timeouts) *http.Client {
	t := timeouts.withDefaults()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: t.Dial, KeepAlive: DefaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: t.ResponseHeader,
	}
	return &http.Client{Transport: transport}
}

// ReadErrorBody reads at most 64KiB of an error response and closes it.
func ReadErrorBody(body io.ReadCloser) []byte {
	defer body.Close()
	b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return b
}

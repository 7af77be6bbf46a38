// Package providertest holds the fixtures shared by the vendor adapter tests.
package providertest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/hoot/provider"
	"github.com/stretchr/testify/require"
)

// Server is an httptest server that records every request it receives.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
}

// Request is a recorded request.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// NewServer starts a recording server in front of h, closed when the test ends.
func NewServer(t *testing.T, h http.Handler) *Server {
	t.Helper()
	s := &Server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

// Requests returns the recorded requests, oldest first.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Last returns the most recent request.
func (s *Server) Last(t *testing.T) Request {
	t.Helper()
	reqs := s.Requests()
	require.NotEmpty(t, reqs, "no request received")
	return reqs[len(reqs)-1]
}

// JSON replies with body and status.
func JSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}
}

// SSE replies with one data frame per payload, flushing after each.
func SSE(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, p := range payloads {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// Raw replies with body as is.
func Raw(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}
}

// Collect drains a stream, failing the test when it does not close in time.
func Collect(t *testing.T, events <-chan provider.StreamEvent) []provider.StreamEvent {
	t.Helper()
	var out []provider.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
			return out
		}
	}
}

// Split separates the chunks of a stream from its terminal event.
func Split(t *testing.T, events []provider.StreamEvent) ([]provider.Chunk, provider.StreamEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	chunks := make([]provider.Chunk, 0, len(events)-1)
	for _, ev := range events[:len(events)-1] {
		c, ok := ev.(provider.Chunk)
		require.True(t, ok, "unexpected %T before the end of the stream", ev)
		chunks = append(chunks, c)
	}
	return chunks, events[len(events)-1]
}

// Final asserts the stream ended with a Final event and returns it.
func Final(t *testing.T, events []provider.StreamEvent) ([]provider.Chunk, provider.Final) {
	t.Helper()
	chunks, last := Split(t, events)
	if f, ok := last.(provider.Failure); ok {
		require.FailNow(t, "stream failed", "%v", f.Err)
	}
	final, ok := last.(provider.Final)
	require.True(t, ok, "stream ended with %T", last)
	return chunks, final
}

// Failure asserts the stream ended with a Failure event and returns its error.
func Failure(t *testing.T, events []provider.StreamEvent) ([]provider.Chunk, error) {
	t.Helper()
	chunks, last := Split(t, events)
	f, ok := last.(provider.Failure)
	require.True(t, ok, "stream ended with %T", last)
	return chunks, f.Err
}

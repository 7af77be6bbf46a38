package httpx

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient(Timeouts{ResponseHeader: 5 * time.Second})
	assert.Zero(t, c.Timeout)
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, DefaultIdleConnTimeout, tr.IdleConnTimeout)
}

func TestIdleTimeout(t *testing.T) {
	t.Run("stalled stream", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()
		r := IdleTimeout(pr, 50*time.Millisecond)

		go func() { _, _ = pw.Write([]byte("data: 1\n\n")) }()
		buf := make([]byte, 64)
		n, err := r.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "data: 1\n\n", string(buf[:n]))

		_, err = r.Read(buf)
		assert.ErrorIs(t, err, ErrIdleTimeout)
	})

	t.Run("steady stream", func(t *testing.T) {
		r := IdleTimeout(io.NopCloser(strings.NewReader("hello")), time.Second)
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
		require.NoError(t, r.Close())
	})

	t.Run("disabled", func(t *testing.T) {
		rc := io.NopCloser(strings.NewReader("x"))
		assert.Equal(t, rc, IdleTimeout(rc, 0))
	})
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Repeat("e", maxErrorBody+10)))
	assert.Len(t, ReadErrorBody(body), maxErrorBody)
}

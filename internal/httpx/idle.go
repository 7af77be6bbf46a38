package httpx

import (
	"errors"
	"io"
	"sync/atomic"
	"time"
)

// ErrIdleTimeout is returned by an idle reader when no data arrived in time.
var ErrIdleTimeout = errors.New("httpx: stream idle timeout")

type idleReader struct {
	rc       io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	timedOut atomic.Bool
}

// IdleTimeout wraps a response body so that a Read blocked for longer than
// timeout fails with ErrIdleTimeout. The body is closed when that happens.
func IdleTimeout(rc io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return rc
	}
	r := &idleReader{rc: rc, timeout: timeout}
	r.timer = time.AfterFunc(timeout, func() {
		r.timedOut.Store(true)
		_ = rc.Close()
	})
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if r.timedOut.Load() {
		return n, ErrIdleTimeout
	}
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleReader) Close() error {
	r.timer.Stop()
	return r.rc.Close()
}

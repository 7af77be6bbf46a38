// Package sse reframes a text/event-stream body into discrete events.
//
// Bytes may arrive in arbitrary chunk boundaries, a frame is only surfaced
// once its terminating blank line (or the end of the stream) has been read.
//
//	r := sse.NewReader(resp.Body)
//	for {
//		frame, err := r.Next()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		if frame.IsDone() {
//			break
//		}
//		handle(frame.Data)
//	}
package sse

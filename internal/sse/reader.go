package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DoneSentinel is the payload OpenAI-compatible vendors send as their last frame.
const DoneSentinel = "[DONE]"

const maxFrameSize = 4 << 20

// ErrFrameTooLarge is returned when a single line exceeds the reader's buffer.
var ErrFrameTooLarge = errors.New("sse: frame exceeds maximum size")

// Frame is one server-sent event.
type Frame struct {
	// Event is the value of the last "event:" field, empty for the default event type.
	Event string
	// Data is the joined "data:" lines of the event.
	Data []byte
}

// IsDone reports whether the frame is the [DONE] terminator.
func (f Frame) IsDone() bool {
	return string(bytes.TrimSpace(f.Data)) == DoneSentinel
}

// Reader reads frames from an event stream.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Reader{scanner: scanner}
}

// Next returns the next frame that carries data. It returns io.EOF once the
// stream is exhausted. A frame still open when the stream ends is flushed first.
func (r *Reader) Next() (Frame, error) {
	if r.done {
		return Frame{}, io.EOF
	}

	var (
		frame   Frame
		data    [][]byte
		hasData bool
	)
	for r.scanner.Scan() {
		line := bytes.TrimSuffix(r.scanner.Bytes(), []byte{'\r'})

		if len(line) == 0 {
			if hasData {
				frame.Data = bytes.Join(data, []byte{'\n'})
				return frame, nil
			}
			frame.Event = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, found := bytes.Cut(line, []byte{':'})
		if found {
			value = bytes.TrimPrefix(value, []byte{' '})
		}
		switch string(field) {
		case "data":
			// the scanner reuses its buffer
			data = append(data, bytes.Clone(value))
			hasData = true
		case "event":
			frame.Event = string(value)
		}
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return Frame{}, ErrFrameTooLarge
		}
		return Frame{}, err
	}
	if hasData {
		frame.Data = bytes.Join(data, []byte{'\n'})
		return frame, nil
	}
	return Frame{}, io.EOF
}

// All reads every frame until the terminator or the end of the stream.
func All(r io.Reader) ([]Frame, error) {
	reader := NewReader(r)
	var frames []Frame
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		if frame.IsDone() {
			return frames, nil
		}
		frames = append(frames, frame)
	}
}

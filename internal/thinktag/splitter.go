// Package thinktag separates <think>...</think> reasoning from the content of
// a streamed completion.
package thinktag

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Splitter routes streamed text either to content or to reasoning. Tags may
// be split across chunks: a trailing fragment that could still become a tag
// is held back until the next chunk decides it.
type Splitter struct {
	inside  bool
	pending string
}

// Inside reports whether the splitter is currently inside a reasoning segment.
func (s *Splitter) Inside() bool { return s.inside }

// Write consumes a chunk and returns the content and reasoning it contained.
func (s *Splitter) Write(chunk string) (content, reasoning string) {
	text := s.pending + chunk
	s.pending = ""

	var cb, rb strings.Builder
	for text != "" {
		tag := openTag
		if s.inside {
			tag = closeTag
		}

		if i := strings.Index(text, tag); i >= 0 {
			s.emit(&cb, &rb, text[:i])
			text = text[i+len(tag):]
			s.inside = !s.inside
			continue
		}

		keep := partialSuffix(text, tag)
		s.emit(&cb, &rb, text[:len(text)-keep])
		s.pending = text[len(text)-keep:]
		break
	}
	return cb.String(), rb.String()
}

// Flush returns text held back at the end of the stream.
func (s *Splitter) Flush() (content, reasoning string) {
	rest := s.pending
	s.pending = ""
	if s.inside {
		return "", rest
	}
	return rest, ""
}

// Split separates a complete, non-streamed text.
func Split(text string) (content, reasoning string) {
	var s Splitter
	c, r := s.Write(text)
	fc, fr := s.Flush()
	return c + fc, r + fr
}

func (s *Splitter) emit(cb, rb *strings.Builder, text string) {
	if s.inside {
		rb.WriteString(text)
		return
	}
	cb.WriteString(text)
}

// partialSuffix returns the length of the longest suffix of text that is a proper prefix of tag.
func partialSuffix(text, tag string) int {
	for n := min(len(tag)-1, len(text)); n > 0; n-- {
		if strings.HasSuffix(text, tag[:n]) {
			return n
		}
	}
	return 0
}

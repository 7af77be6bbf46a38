package bedrock

import (
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/casualjim/hoot/provider/httpbase"
	"github.com/tidwall/sjson"
)

const (
	headerMessageType   = ":message-type"
	headerEventType     = ":event-type"
	headerExceptionType = ":exception-type"
)

// eventFrames decodes the AWS event-stream framing of ConverseStream. Each
// event is rewritten as {"<event-type>": payload} and each exception as
// {"exception": {"type": "<exception-type>", ...payload}} so the adapter
// only ever sees JSON.
type eventFrames struct {
	r   io.Reader
	dec *eventstream.Decoder
	buf []byte
}

func newEventFrames(r io.Reader) httpbase.FrameReader {
	return &eventFrames{r: r, dec: eventstream.NewDecoder(), buf: make([]byte, 0, 4096)}
}

func (f *eventFrames) Next() ([]byte, error) {
	msg, err := f.dec.Decode(f.r, f.buf)
	if err != nil {
		return nil, err
	}

	payload := msg.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	switch messageType := header(msg.Headers, headerMessageType); messageType {
	case "event", "":
		eventType := header(msg.Headers, headerEventType)
		if eventType == "" {
			return nil, fmt.Errorf("event-stream message without %s header", headerEventType)
		}
		return sjson.SetRawBytes([]byte(`{}`), eventType, payload)
	case "exception", "error":
		typ := header(msg.Headers, headerExceptionType)
		if typ == "" {
			typ = header(msg.Headers, ":error-code")
		}
		exc, err := sjson.SetRawBytes([]byte(`{}`), "exception", payload)
		if err != nil {
			return nil, err
		}
		if m := header(msg.Headers, ":error-message"); m != "" {
			if exc, err = sjson.SetBytes(exc, "exception.message", m); err != nil {
				return nil, err
			}
		}
		return sjson.SetBytes(exc, "exception.type", typ)
	default:
		return nil, fmt.Errorf("unknown event-stream message type %q", messageType)
	}
}

func header(h eventstream.Headers, name string) string {
	v := h.Get(name)
	if v == nil {
		return ""
	}
	return v.String()
}

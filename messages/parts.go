package messages

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Part is a piece of message content. Implementations are TextPart, File,
// ToolCallRequest and ToolCallResult.
type Part interface {
	part()
}

// TextPart is a plain text content part.
type TextPart struct {
	Text string
	_    struct{} // require keyed usage
}

// Text creates a TextPart.
func Text(text string) TextPart {
	return TextPart{Text: text}
}

func (TextPart) part() {}

var textJSON = []byte(`{"type":"text"}`)

func (t TextPart) MarshalJSON() ([]byte, error) {
	return sjson.SetBytes(textJSON, "text", t.Text)
}

func (t *TextPart) UnmarshalJSON(input []byte) error {
	text := gjson.GetBytes(input, "text")
	if !text.Exists() {
		return errors.New("missing required field 'text'")
	}
	t.Text = text.String()
	return nil
}

// File references an image, audio clip or document, either by URL or by inline data.
type File struct {
	URL         string
	Data        []byte
	ContentType string
	// DurationSeconds is the length of an audio file when the caller knows it.
	// Pricing falls back to heuristics when it is nil.
	DurationSeconds *float64
	_               struct{} // require keyed usage
}

// ImageURL creates a File part that points at an image URL. The content type is
// inferred from the URL extension when possible.
func ImageURL(url string) File {
	ct := "image/*"
	if idx := strings.LastIndex(url, "."); idx > 0 {
		if t := mime.TypeByExtension(strings.ToLower(url[idx:])); strings.HasPrefix(t, "image/") {
			ct = t
		}
	}
	return File{URL: url, ContentType: ct}
}

// InlineFile creates a File part from raw bytes.
func InlineFile(contentType string, data []byte) File {
	return File{ContentType: contentType, Data: data}
}

func (File) part() {}

// IsImage reports whether the file is an image.
func (f File) IsImage() bool { return strings.HasPrefix(f.ContentType, "image/") }

// IsAudio reports whether the file is an audio clip.
func (f File) IsAudio() bool { return strings.HasPrefix(f.ContentType, "audio/") }

// IsPDF reports whether the file is a PDF document.
func (f File) IsPDF() bool { return f.ContentType == "application/pdf" }

// Base64 returns the inline data encoded as standard base64.
func (f File) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// DataURL returns the URL when set, otherwise a data: URL built from the inline data.
func (f File) DataURL() string {
	if f.URL != "" {
		return f.URL
	}
	return "data:" + f.ContentType + ";base64," + f.Base64()
}

// Format returns the content subtype, e.g. "png" for "image/png" or "mp3" for "audio/mpeg".
func (f File) Format() string {
	_, sub, ok := strings.Cut(f.ContentType, "/")
	if !ok {
		return ""
	}
	switch sub {
	case "mpeg":
		return "mp3"
	case "x-wav", "wave":
		return "wav"
	case "jpg":
		return "jpeg"
	}
	return sub
}

var fileJSON = []byte(`{"type":"file"}`)

func (f File) MarshalJSON() ([]byte, error) {
	result := fileJSON
	var err error
	if f.URL != "" {
		if result, err = sjson.SetBytes(result, "url", f.URL); err != nil {
			return nil, err
		}
	}
	if len(f.Data) > 0 {
		if result, err = sjson.SetBytes(result, "data", f.Base64()); err != nil {
			return nil, err
		}
	}
	if f.ContentType != "" {
		if result, err = sjson.SetBytes(result, "content_type", f.ContentType); err != nil {
			return nil, err
		}
	}
	if f.DurationSeconds != nil {
		if result, err = sjson.SetBytes(result, "duration_seconds", *f.DurationSeconds); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (f *File) UnmarshalJSON(input []byte) error {
	url := gjson.GetBytes(input, "url")
	data := gjson.GetBytes(input, "data")
	if !url.Exists() && !data.Exists() {
		return errors.New("file requires one of 'url' or 'data'")
	}
	f.URL = url.String()
	if data.Exists() {
		raw, err := base64.StdEncoding.DecodeString(data.String())
		if err != nil {
			return fmt.Errorf("invalid file data: %w", err)
		}
		f.Data = raw
	}
	f.ContentType = gjson.GetBytes(input, "content_type").String()
	if d := gjson.GetBytes(input, "duration_seconds"); d.Exists() {
		v := d.Float()
		f.DurationSeconds = &v
	}
	return nil
}

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

func (ToolCallRequest) part() {}

func (r ToolCallRequest) MarshalJSON() ([]byte, error) {
	type plain ToolCallRequest
	b, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", "tool_call_request")
}

func (r *ToolCallRequest) UnmarshalJSON(input []byte) error {
	id := gjson.GetBytes(input, "id")
	name := gjson.GetBytes(input, "tool_name")
	if !id.Exists() || !name.Exists() {
		return errors.New("tool call request requires 'id' and 'tool_name'")
	}
	r.ID = id.String()
	r.ToolName = name.String()
	r.ToolInput = nil
	if in := gjson.GetBytes(input, "tool_input"); in.Exists() && in.IsObject() {
		if err := json.Unmarshal([]byte(in.Raw), &r.ToolInput); err != nil {
			return fmt.Errorf("invalid tool_input: %w", err)
		}
	}
	return nil
}

// ArgumentsJSON returns the tool input encoded as a JSON object, "{}" when empty.
func (r ToolCallRequest) ArgumentsJSON() string {
	if len(r.ToolInput) == 0 {
		return "{}"
	}
	b, err := json.Marshal(r.ToolInput)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolCallResult is the outcome of running a tool the model asked for.
type ToolCallResult struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func (ToolCallResult) part() {}

func (r ToolCallResult) MarshalJSON() ([]byte, error) {
	type plain ToolCallResult
	b, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", "tool_call_result")
}

func (r *ToolCallResult) UnmarshalJSON(input []byte) error {
	id := gjson.GetBytes(input, "id")
	if !id.Exists() {
		return errors.New("tool call result requires 'id'")
	}
	type plain ToolCallResult
	var p plain
	if err := json.Unmarshal(input, &p); err != nil {
		return err
	}
	*r = ToolCallResult(p)
	return nil
}

// Output renders the result the way vendors expect it in a tool message: the
// error when the tool failed, the raw string for string results, JSON otherwise.
func (r ToolCallResult) Output() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Sprint(r.Result)
	}
	return string(b)
}

func unmarshalParts(arr gjson.Result) ([]Part, error) {
	items := arr.Array()
	parts := make([]Part, len(items))
	for idx, item := range items {
		tpe := item.Get("type").String()
		switch tpe {
		case "text":
			var part TextPart
			if err := part.UnmarshalJSON([]byte(item.Raw)); err != nil {
				return nil, fmt.Errorf("invalid text part at %d: %w", idx, err)
			}
			parts[idx] = part
		case "file":
			var part File
			if err := part.UnmarshalJSON([]byte(item.Raw)); err != nil {
				return nil, fmt.Errorf("invalid file part at %d: %w", idx, err)
			}
			parts[idx] = part
		case "tool_call_request":
			var part ToolCallRequest
			if err := part.UnmarshalJSON([]byte(item.Raw)); err != nil {
				return nil, fmt.Errorf("invalid tool call request at %d: %w", idx, err)
			}
			parts[idx] = part
		case "tool_call_result":
			var part ToolCallResult
			if err := part.UnmarshalJSON([]byte(item.Raw)); err != nil {
				return nil, fmt.Errorf("invalid tool call result at %d: %w", idx, err)
			}
			parts[idx] = part
		default:
			return nil, fmt.Errorf("content part at %d has an unknown type %q", idx, tpe)
		}
	}
	return parts, nil
}

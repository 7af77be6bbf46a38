package bedrock

import (
	"fmt"
	"strings"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

var imageFormats = map[string]bool{"png": true, "jpeg": true, "gif": true, "webp": true}

// documentFormats maps content types to Converse document formats.
var documentFormats = [][2]string{
	{"application/pdf", "pdf"},
	{"text/csv", "csv"},
	{"application/msword", "doc"},
	{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "docx"},
	{"application/vnd.ms-excel", "xls"},
	{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx"},
	{"text/html", "html"},
	{"text/plain", "txt"},
	{"text/markdown", "md"},
}

func documentFormat(contentType string) (string, bool) {
	for _, f := range documentFormats {
		if f[0] == contentType {
			return f[1], true
		}
	}
	return "", false
}

func documentType(format string) string {
	for _, f := range documentFormats {
		if f[1] == format {
			return f[0]
		}
	}
	return "application/octet-stream"
}

// converter carries the document counter, Converse requires unique document names.
type converter struct {
	documents int
}

// convertMessages splits conv into system blocks and turns. Tool results
// travel as toolResult blocks of a user turn.
func convertMessages(conv []messages.Message) ([]SystemBlock, []Message, error) {
	var (
		c      converter
		system []SystemBlock
	)
	out := make([]Message, 0, len(conv))
	for i, m := range conv {
		switch m.Role {
		case messages.RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, SystemBlock{Text: text})
			}

		case messages.RoleUser:
			blocks, err := c.convertParts(m.Content)
			if err != nil {
				return nil, nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, Message{Role: "user", Content: blocks})

		case messages.RoleAssistant:
			var blocks []ContentBlock
			if text := m.Text(); text != "" {
				blocks = append(blocks, ContentBlock{Text: text})
			}
			for _, call := range m.AllToolCallRequests() {
				blocks = append(blocks, ContentBlock{ToolUse: &ToolUse{
					ToolUseID: call.ID,
					Name:      call.ToolName,
					Input:     json.RawMessage(call.ArgumentsJSON()),
				}})
			}
			out = append(out, Message{Role: "assistant", Content: blocks})

		case messages.RoleTool:
			blocks := make([]ContentBlock, 0, len(m.Content))
			for _, res := range m.ToolCallResults() {
				blocks = append(blocks, toolResult(res))
			}
			out = append(out, Message{Role: "user", Content: blocks})

		default:
			return nil, nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}
	return system, out, nil
}

func (c *converter) convertParts(parts []messages.Part) ([]ContentBlock, error) {
	blocks := make([]ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case messages.TextPart:
			if p.Text != "" {
				blocks = append(blocks, ContentBlock{Text: p.Text})
			}
		case messages.File:
			b, err := c.convertFile(p)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		case messages.ToolCallResult:
			blocks = append(blocks, toolResult(p))
		}
	}
	return blocks, nil
}

func toolResult(res messages.ToolCallResult) ContentBlock {
	tr := &ToolResult{ToolUseID: res.ID, Content: []ToolResultContent{{Text: res.Output()}}}
	if res.Error != "" {
		tr.Status = "error"
	}
	return ContentBlock{ToolResult: tr}
}

func fileSource(f messages.File) (Source, error) {
	switch {
	case len(f.Data) > 0:
		return Source{Bytes: f.Base64()}, nil
	case strings.HasPrefix(f.URL, "s3://"):
		return Source{S3Location: &S3Location{URI: f.URL}}, nil
	}
	return Source{}, provider.NewError(provider.KindInvalidFile, "bedrock only accepts inline files or s3 locations")
}

func (c *converter) convertFile(f messages.File) (ContentBlock, error) {
	switch {
	case f.IsAudio():
		return ContentBlock{}, provider.NewError(provider.KindModelDoesNotSupportMode, "bedrock models do not accept audio input")

	case f.IsImage():
		format := f.Format()
		if !imageFormats[format] {
			return ContentBlock{}, provider.NewError(provider.KindInvalidFile, fmt.Sprintf("unsupported image type %q", f.ContentType))
		}
		src, err := fileSource(f)
		if err != nil {
			return ContentBlock{}, err
		}
		return ContentBlock{Image: &ImageBlock{Format: format, Source: src}}, nil
	}

	format, ok := documentFormat(f.ContentType)
	if !ok {
		return ContentBlock{}, provider.NewError(provider.KindInvalidFile, fmt.Sprintf("unsupported file type %q", f.ContentType))
	}
	src, err := fileSource(f)
	if err != nil {
		return ContentBlock{}, err
	}
	c.documents++
	return ContentBlock{Document: &DocumentBlock{
		Format: format,
		Name:   fmt.Sprintf("document-%d", c.documents),
		Source: src,
	}}, nil
}

func convertTools(set *tool.Set) (*ToolConfig, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	tools := make([]Tool, 0, set.Len())
	for spec := range set.All() {
		schema, err := spec.InputSchemaMap()
		if err != nil {
			return nil, err
		}
		tools = append(tools, Tool{ToolSpec: ToolSpec{
			Name:        spec.Name,
			Description: strings.TrimSpace(spec.Description),
			InputSchema: InputSchema{JSON: schema},
		}})
	}
	return &ToolConfig{Tools: tools}, nil
}

// schemaInstruction asks for JSON matching schema, Converse has no native structured output.
func schemaInstruction(schema map[string]any) (string, error) {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding output schema: %w", err)
	}
	return "Respond only with a JSON object that conforms to this JSON schema, without any other text:\n" + string(b), nil
}

// standardize converts a stored Converse history into the standard shape.
func standardize(raw []json.RawMessage) ([]messages.Standard, error) {
	out := make([]messages.Standard, 0, len(raw))
	for i, r := range raw {
		var m Message
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if m.Role != "user" && m.Role != "assistant" {
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}

		std := messages.Standard{Role: messages.Role(m.Role)}
		for _, b := range m.Content {
			if sc, ok := standardBlock(b); ok {
				std.Content = append(std.Content, sc)
			}
		}
		out = messages.AppendStandard(out, std)
	}
	return out, nil
}

func sourceURL(src Source, contentType string) string {
	if src.S3Location != nil {
		return src.S3Location.URI
	}
	return "data:" + contentType + ";base64," + src.Bytes
}

func standardBlock(b ContentBlock) (messages.StandardContent, bool) {
	switch {
	case b.Text != "":
		return messages.TextContent(b.Text), true
	case b.Image != nil:
		url := sourceURL(b.Image.Source, "image/"+b.Image.Format)
		return messages.StandardContent{Type: messages.StandardImageURL, ImageURL: &messages.URLRef{URL: url}}, true
	case b.Document != nil:
		url := sourceURL(b.Document.Source, documentType(b.Document.Format))
		return messages.StandardContent{Type: messages.StandardDocumentURL, DocumentURL: &messages.URLRef{URL: url}}, true
	case b.ToolUse != nil:
		req := messages.ToolCallRequest{ID: b.ToolUse.ToolUseID, ToolName: b.ToolUse.Name, ToolInput: map[string]any{}}
		if len(b.ToolUse.Input) > 0 {
			_ = json.Unmarshal(b.ToolUse.Input, &req.ToolInput)
		}
		return messages.ToolCallRequestContent(req), true
	case b.ToolResult != nil:
		var parts []string
		for _, c := range b.ToolResult.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			} else if c.JSON != nil {
				if j, err := json.Marshal(c.JSON); err == nil {
					parts = append(parts, string(j))
				}
			}
		}
		text := strings.Join(parts, "\n")
		res := messages.ToolCallResult{ID: b.ToolResult.ToolUseID, Result: text}
		if b.ToolResult.Status == "error" {
			res = messages.ToolCallResult{ID: b.ToolResult.ToolUseID, Error: text}
		}
		return messages.ToolCallResultContent(res), true
	}
	return messages.StandardContent{}, false
}

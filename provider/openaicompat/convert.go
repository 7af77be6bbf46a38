package openaicompat

import (
	"fmt"
	"strings"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

// ConvertOptions are the per-vendor and per-model switches of the conversion.
type ConvertOptions struct {
	// SystemAsUser sends system messages as user messages, for models
	// without a system role.
	SystemAsUser bool
	// Audio allows input_audio parts.
	Audio bool
	// Files allows PDF documents as file parts.
	Files bool
	// DocumentURL rewrites the URL of a document sent as an image_url
	// part. It is used when Files is false, nil rejects documents.
	DocumentURL func(messages.File) string
}

// ConvertMessages translates a conversation into chat messages, preserving
// order. A tool message fans out into one message per result.
func ConvertMessages(conv []messages.Message, opts ConvertOptions) ([]Message, error) {
	out := make([]Message, 0, len(conv))
	for i, m := range conv {
		switch m.Role {
		case messages.RoleSystem:
			role := "system"
			if opts.SystemAsUser {
				role = "user"
			}
			out = append(out, Message{Role: role, Content: TextContent(m.Text())})

		case messages.RoleUser:
			content, err := convertParts(m.Content, opts)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, Message{Role: "user", Content: content})

		case messages.RoleAssistant:
			msg := Message{Role: "assistant"}
			if text := m.Text(); text != "" {
				msg.Content = TextContent(text)
			}
			for _, call := range m.AllToolCallRequests() {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:   call.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      call.ToolName,
						Arguments: call.ArgumentsJSON(),
					},
				})
			}
			out = append(out, msg)

		case messages.RoleTool:
			for _, res := range m.ToolCallResults() {
				out = append(out, Message{Role: "tool", ToolCallID: res.ID, Content: TextContent(res.Output())})
			}

		default:
			return nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}
	return out, nil
}

func convertParts(parts []messages.Part, opts ConvertOptions) (Content, error) {
	content := make(Content, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case messages.TextPart:
			content = append(content, ContentPart{Type: PartText, Text: p.Text})

		case messages.File:
			part, err := convertFile(p, opts)
			if err != nil {
				return nil, err
			}
			content = append(content, part)

		case messages.ToolCallResult:
			content = append(content, ContentPart{Type: PartText, Text: p.Output()})
		}
	}
	return content, nil
}

func convertFile(f messages.File, opts ConvertOptions) (ContentPart, error) {
	switch {
	case f.IsImage():
		return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: f.DataURL()}}, nil

	case f.IsAudio():
		if !opts.Audio {
			return ContentPart{}, provider.NewError(provider.KindModelDoesNotSupportMode, "model does not accept audio input")
		}
		if len(f.Data) == 0 {
			return ContentPart{}, provider.NewError(provider.KindInvalidFile, "audio input must be sent inline")
		}
		return ContentPart{Type: PartInputAudio, InputAudio: &InputAudio{Data: f.Base64(), Format: f.Format()}}, nil

	case f.IsPDF() && opts.Files:
		if len(f.Data) == 0 {
			return ContentPart{Type: PartFile, File: &FileData{FileID: f.URL}}, nil
		}
		return ContentPart{Type: PartFile, File: &FileData{Filename: "document.pdf", FileData: f.DataURL()}}, nil

	case opts.DocumentURL != nil:
		return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: opts.DocumentURL(f)}}, nil
	}
	return ContentPart{}, provider.NewError(provider.KindInvalidFile, fmt.Sprintf("unsupported file type %q", f.ContentType))
}

// ConvertTools translates the enabled tools into function tools.
func ConvertTools(set *tool.Set) ([]Tool, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	tools := make([]Tool, 0, set.Len())
	for spec := range set.All() {
		params, err := spec.InputSchemaMap()
		if err != nil {
			return nil, err
		}
		tools = append(tools, Tool{
			Type: "function",
			Function: FunctionDefinition{
				Name:        spec.Name,
				Description: strings.TrimSpace(spec.Description),
				Parameters:  params,
			},
		})
	}
	return tools, nil
}

// JSONSchemaResponseFormat asks for strict schema-constrained output, named
// after the task and schema.
func JSONSchemaResponseFormat(options provider.Options) *ResponseFormat {
	return &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchemaFormat{
			Name:   options.OutputSchemaName(),
			Schema: options.OutputSchema,
			Strict: true,
		},
	}
}

// JSONObjectResponseFormat asks for a JSON object, constrained by schema when it is set.
func JSONObjectResponseFormat(schema map[string]any) *ResponseFormat {
	return &ResponseFormat{Type: "json_object", Schema: schema}
}

// Standardize converts a stored chat history into the standard message
// shape. Consecutive tool messages are merged into one tool-results turn.
func Standardize(raw []json.RawMessage) ([]messages.Standard, error) {
	out := make([]messages.Standard, 0, len(raw))
	for i, r := range raw {
		var m Message
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		switch m.Role {
		case "tool":
			res := messages.ToolCallResult{ID: m.ToolCallID, ToolName: m.Name, Result: m.Content.Text()}
			out = messages.AppendStandard(out, messages.Standard{
				Role:    messages.RoleUser,
				Content: []messages.StandardContent{messages.ToolCallResultContent(res)},
			})
			continue
		case "system", "user", "assistant":
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}

		std := messages.Standard{Role: messages.Role(m.Role)}
		for _, p := range m.Content {
			if c, ok := standardPart(p); ok {
				std.Content = append(std.Content, c)
			}
		}
		for _, call := range m.ToolCalls {
			req := messages.ToolCallRequest{ID: call.ID, ToolName: call.Function.Name, ToolInput: map[string]any{}}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &req.ToolInput); err != nil {
					return nil, fmt.Errorf("message %d: tool call %s: %w", i, call.ID, err)
				}
			}
			std.Content = append(std.Content, messages.ToolCallRequestContent(req))
		}
		out = messages.AppendStandard(out, std)
	}
	return out, nil
}

func standardPart(p ContentPart) (messages.StandardContent, bool) {
	switch p.Type {
	case PartText:
		return messages.TextContent(p.Text), true
	case PartRefusal:
		return messages.TextContent(p.Refusal), true
	case PartImageURL:
		if p.ImageURL == nil {
			return messages.StandardContent{}, false
		}
		return messages.StandardContent{Type: messages.StandardImageURL, ImageURL: &messages.URLRef{URL: p.ImageURL.URL}}, true
	case PartInputAudio:
		if p.InputAudio == nil {
			return messages.StandardContent{}, false
		}
		url := "data:audio/" + p.InputAudio.Format + ";base64," + p.InputAudio.Data
		return messages.StandardContent{Type: messages.StandardAudioURL, AudioURL: &messages.URLRef{URL: url}}, true
	case PartFile:
		if p.File == nil {
			return messages.StandardContent{}, false
		}
		url := p.File.FileData
		if url == "" {
			url = p.File.FileID
		}
		return messages.StandardContent{Type: messages.StandardDocumentURL, DocumentURL: &messages.URLRef{URL: url}}, true
	}
	return messages.StandardContent{}, false
}

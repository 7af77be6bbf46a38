package anthropic

import (
	"fmt"
	"strings"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

// convertMessages splits conv into the system prompt and the turns. Tool
// results travel as tool_result blocks of a user turn.
func convertMessages(conv []messages.Message) (string, []Message, error) {
	var system []string
	out := make([]Message, 0, len(conv))
	for i, m := range conv {
		switch m.Role {
		case messages.RoleSystem:
			system = append(system, m.Text())

		case messages.RoleUser:
			blocks, err := convertParts(m.Content)
			if err != nil {
				return "", nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, Message{Role: "user", Content: blocks})

		case messages.RoleAssistant:
			var blocks []Block
			if text := m.Text(); text != "" {
				blocks = append(blocks, Block{Type: BlockText, Text: text})
			}
			for _, call := range m.AllToolCallRequests() {
				blocks = append(blocks, Block{
					Type:  BlockToolUse,
					ID:    call.ID,
					Name:  call.ToolName,
					Input: json.RawMessage(call.ArgumentsJSON()),
				})
			}
			out = append(out, Message{Role: "assistant", Content: blocks})

		case messages.RoleTool:
			blocks := make([]Block, 0, len(m.Content))
			for _, res := range m.ToolCallResults() {
				blocks = append(blocks, toolResult(res))
			}
			out = append(out, Message{Role: "user", Content: blocks})

		default:
			return "", nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}
	return strings.Join(system, "\n\n"), out, nil
}

func convertParts(parts []messages.Part) ([]Block, error) {
	blocks := make([]Block, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case messages.TextPart:
			if p.Text != "" {
				blocks = append(blocks, Block{Type: BlockText, Text: p.Text})
			}
		case messages.File:
			b, err := convertFile(p)
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

func toolResult(res messages.ToolCallResult) Block {
	return Block{Type: BlockToolResult, ToolUseID: res.ID, Content: res.Output(), IsError: res.Error != ""}
}

func convertFile(f messages.File) (Block, error) {
	var typ string
	switch {
	case f.IsImage():
		typ = BlockImage
	case f.IsPDF():
		typ = BlockDocument
	case f.IsAudio():
		return Block{}, provider.NewError(provider.KindModelDoesNotSupportMode, "anthropic models do not accept audio input")
	default:
		return Block{}, provider.NewError(provider.KindInvalidFile, fmt.Sprintf("unsupported file type %q", f.ContentType))
	}

	if len(f.Data) == 0 {
		return Block{Type: typ, Source: &Source{Type: "url", URL: f.URL}}, nil
	}
	return Block{Type: typ, Source: &Source{Type: "base64", MediaType: f.ContentType, Data: f.Base64()}}, nil
}

func convertTools(set *tool.Set) ([]Tool, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	tools := make([]Tool, 0, set.Len())
	for spec := range set.All() {
		schema, err := spec.InputSchemaMap()
		if err != nil {
			return nil, err
		}
		tools = append(tools, Tool{Name: spec.Name, Description: strings.TrimSpace(spec.Description), InputSchema: schema})
	}
	return tools, nil
}

// schemaInstruction asks for JSON matching schema. The Messages API has no
// native structured output, the instruction is appended to the system prompt.
func schemaInstruction(schema map[string]any) (string, error) {
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding output schema: %w", err)
	}
	return "Respond only with a JSON object that conforms to this JSON schema, without any other text:\n" + string(b), nil
}

// standardize converts a stored Messages API history into the standard shape.
func standardize(raw []json.RawMessage) ([]messages.Standard, error) {
	out := make([]messages.Standard, 0, len(raw))
	for i, r := range raw {
		var m Message
		if err := unmarshalMessage(r, &m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if m.Role != "user" && m.Role != "assistant" && m.Role != "system" {
			return nil, fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}

		std := messages.Standard{Role: messages.Role(m.Role)}
		for _, b := range m.Content {
			if c, ok := standardBlock(b); ok {
				std.Content = append(std.Content, c)
			}
		}
		out = messages.AppendStandard(out, std)
	}
	return out, nil
}

// unmarshalMessage accepts the string shorthand for a single text block.
func unmarshalMessage(raw json.RawMessage, m *Message) error {
	var shorthand struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &shorthand); err == nil {
		m.Role = shorthand.Role
		m.Content = []Block{{Type: BlockText, Text: shorthand.Content}}
		return nil
	}
	return json.Unmarshal(raw, m)
}

func standardBlock(b Block) (messages.StandardContent, bool) {
	switch b.Type {
	case BlockText:
		return messages.TextContent(b.Text), true
	case BlockImage, BlockDocument:
		if b.Source == nil {
			return messages.StandardContent{}, false
		}
		url := b.Source.URL
		if b.Source.Type == "base64" {
			url = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
		}
		ref := &messages.URLRef{URL: url}
		if b.Type == BlockImage {
			return messages.StandardContent{Type: messages.StandardImageURL, ImageURL: ref}, true
		}
		return messages.StandardContent{Type: messages.StandardDocumentURL, DocumentURL: ref}, true
	case BlockToolUse:
		req := messages.ToolCallRequest{ID: b.ID, ToolName: b.Name, ToolInput: map[string]any{}}
		if len(b.Input) > 0 {
			_ = json.Unmarshal(b.Input, &req.ToolInput)
		}
		return messages.ToolCallRequestContent(req), true
	case BlockToolResult:
		res := messages.ToolCallResult{ID: b.ToolUseID, Result: b.Content}
		if b.IsError {
			res = messages.ToolCallResult{ID: b.ToolUseID, Error: b.Content}
		}
		return messages.ToolCallResultContent(res), true
	}
	return messages.StandardContent{}, false
}

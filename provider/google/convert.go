package google

import (
	"fmt"
	"strings"

	"github.com/casualjim/hoot/messages"
	"github.com/casualjim/hoot/provider"
	"github.com/casualjim/hoot/tool"
	json "github.com/goccy/go-json"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// convertMessages maps conv onto contents. System messages are collected into
// the system instruction and tool results become functionResponse parts of a
// user turn, named after the call they answer.
func convertMessages(conv []messages.Message) (*Content, []Content, error) {
	var system []Part
	names := map[string]string{}
	out := make([]Content, 0, len(conv))

	for i, m := range conv {
		switch m.Role {
		case messages.RoleSystem:
			if text := m.Text(); text != "" {
				system = append(system, Part{Text: text})
			}

		case messages.RoleUser:
			parts, err := convertParts(m.Content, names)
			if err != nil {
				return nil, nil, fmt.Errorf("message %d: %w", i, err)
			}
			out = append(out, Content{Role: roleUser, Parts: parts})

		case messages.RoleAssistant:
			var parts []Part
			if text := m.Text(); text != "" {
				parts = append(parts, Part{Text: text})
			}
			for _, call := range m.AllToolCallRequests() {
				names[call.ID] = call.ToolName
				args := call.ToolInput
				if args == nil {
					args = map[string]any{}
				}
				parts = append(parts, Part{FunctionCall: &FunctionCall{Name: call.ToolName, Args: args}})
			}
			out = append(out, Content{Role: roleModel, Parts: parts})

		case messages.RoleTool:
			parts := make([]Part, 0, len(m.Content))
			for _, res := range m.ToolCallResults() {
				parts = append(parts, functionResponse(res, names))
			}
			out = append(out, Content{Role: roleUser, Parts: parts})

		default:
			return nil, nil, fmt.Errorf("message %d: unsupported role %q", i, m.Role)
		}
	}

	if len(system) == 0 {
		return nil, out, nil
	}
	return &Content{Role: roleUser, Parts: system}, out, nil
}

func convertParts(parts []messages.Part, names map[string]string) ([]Part, error) {
	out := make([]Part, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case messages.TextPart:
			if p.Text != "" {
				out = append(out, Part{Text: p.Text})
			}
		case messages.File:
			part, err := convertFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, part)
		case messages.ToolCallResult:
			out = append(out, functionResponse(p, names))
		}
	}
	return out, nil
}

func functionResponse(res messages.ToolCallResult, names map[string]string) Part {
	name := res.ToolName
	if name == "" {
		name = names[res.ID]
	}
	response := map[string]any{"result": res.Result}
	if res.Error != "" {
		response = map[string]any{"error": res.Error}
	}
	return Part{FunctionResponse: &FunctionResponse{Name: name, Response: response}}
}

// convertFile sends inline data as a blob and everything else by URI.
func convertFile(f messages.File) (Part, error) {
	if f.ContentType == "" || f.ContentType == "image/*" {
		return Part{}, provider.NewError(provider.KindInvalidFile, "file has no content type")
	}
	if len(f.Data) > 0 {
		return Part{InlineData: &Blob{MimeType: f.ContentType, Data: f.Base64()}}, nil
	}
	if f.URL == "" {
		return Part{}, provider.NewError(provider.KindInvalidFile, "file has neither data nor url")
	}
	return Part{FileData: &FileData{MimeType: f.ContentType, FileURI: f.URL}}, nil
}

func convertTools(set *tool.Set) ([]Tool, error) {
	if set.Len() == 0 {
		return nil, nil
	}
	decls := make([]FunctionDeclaration, 0, set.Len())
	for spec := range set.All() {
		schema, err := spec.InputSchemaMap()
		if err != nil {
			return nil, err
		}
		decls = append(decls, FunctionDeclaration{
			Name:        spec.Name,
			Description: strings.TrimSpace(spec.Description),
			Parameters:  SanitizeSchema(schema),
		})
	}
	return []Tool{{FunctionDeclarations: decls}}, nil
}

// allowedSchemaKeys is the OpenAPI subset Vertex accepts in response and parameter schemas.
var allowedSchemaKeys = map[string]bool{
	"type":             true,
	"format":           true,
	"title":            true,
	"description":      true,
	"nullable":         true,
	"enum":             true,
	"properties":       true,
	"required":         true,
	"items":            true,
	"minItems":         true,
	"maxItems":         true,
	"minimum":          true,
	"maximum":          true,
	"minLength":        true,
	"maxLength":        true,
	"pattern":          true,
	"anyOf":            true,
	"propertyOrdering": true,
}

const maxRefDepth = 16

// SanitizeSchema rewrites a JSON schema into the subset Vertex accepts.
// Local references are inlined, a type list holding "null" becomes a
// nullable type, const becomes a one-value enum and unknown keywords are dropped.
func SanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	defs, _ := schema["$defs"].(map[string]any)
	if defs == nil {
		defs, _ = schema["definitions"].(map[string]any)
	}
	return sanitize(schema, defs, 0)
}

func sanitize(node map[string]any, defs map[string]any, depth int) map[string]any {
	if ref, ok := node["$ref"].(string); ok && depth < maxRefDepth {
		name := ref[strings.LastIndexByte(ref, '/')+1:]
		if target, ok := defs[name].(map[string]any); ok {
			resolved := sanitize(target, defs, depth+1)
			if desc, ok := node["description"].(string); ok {
				resolved["description"] = desc
			}
			return resolved
		}
	}

	out := make(map[string]any, len(node))
	for k, v := range node {
		switch k {
		case "type":
			setType(out, v)
		case "const":
			out["enum"] = []any{v}
		case "properties":
			props, ok := v.(map[string]any)
			if !ok {
				continue
			}
			clean := make(map[string]any, len(props))
			for name, p := range props {
				if pm, ok := p.(map[string]any); ok {
					clean[name] = sanitize(pm, defs, depth)
				}
			}
			out[k] = clean
		case "items":
			if im, ok := v.(map[string]any); ok {
				out[k] = sanitize(im, defs, depth)
			}
		case "anyOf", "oneOf":
			variants := sanitizeVariants(v, defs, depth, out)
			if len(variants) == 1 {
				for vk, vv := range variants[0] {
					out[vk] = vv
				}
			} else if len(variants) > 1 {
				out["anyOf"] = variants
			}
		default:
			if allowedSchemaKeys[k] {
				out[k] = v
			}
		}
	}
	return out
}

// sanitizeVariants drops {"type":"null"} variants, marking out nullable instead.
func sanitizeVariants(v any, defs map[string]any, depth int, out map[string]any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	variants := make([]map[string]any, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t == "null" {
			out["nullable"] = true
			continue
		}
		variants = append(variants, sanitize(m, defs, depth))
	}
	return variants
}

func setType(out map[string]any, v any) {
	list, ok := v.([]any)
	if !ok {
		out["type"] = v
		return
	}
	var types []string
	for _, t := range list {
		s, _ := t.(string)
		if s == "null" {
			out["nullable"] = true
			continue
		}
		if s != "" {
			types = append(types, s)
		}
	}
	if len(types) > 0 {
		out["type"] = types[0]
	}
}

// standardize converts a stored contents history into the standard shape.
func standardize(raw []json.RawMessage) ([]messages.Standard, error) {
	out := make([]messages.Standard, 0, len(raw))
	for i, r := range raw {
		var c Content
		if err := json.Unmarshal(r, &c); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		var role messages.Role
		switch c.Role {
		case roleUser, "":
			role = messages.RoleUser
		case roleModel:
			role = messages.RoleAssistant
		case "system":
			role = messages.RoleSystem
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, c.Role)
		}

		std := messages.Standard{Role: role}
		for _, p := range c.Parts {
			if sc, ok := standardPart(p); ok {
				std.Content = append(std.Content, sc)
			}
		}
		out = messages.AppendStandard(out, std)
	}
	return out, nil
}

func standardPart(p Part) (messages.StandardContent, bool) {
	switch {
	case p.Thought:
		return messages.StandardContent{}, false
	case p.Text != "":
		return messages.TextContent(p.Text), true
	case p.InlineData != nil:
		return messages.FileContent(messages.File{ContentType: p.InlineData.MimeType, URL: "data:" + p.InlineData.MimeType + ";base64," + p.InlineData.Data}), true
	case p.FileData != nil:
		return messages.FileContent(messages.File{ContentType: p.FileData.MimeType, URL: p.FileData.FileURI}), true
	case p.FunctionCall != nil:
		return messages.ToolCallRequestContent(messages.ToolCallRequest{
			ID:        p.FunctionCall.ID,
			ToolName:  p.FunctionCall.Name,
			ToolInput: p.FunctionCall.Args,
		}), true
	case p.FunctionResponse != nil:
		res := messages.ToolCallResult{ID: p.FunctionResponse.ID, ToolName: p.FunctionResponse.Name}
		if e, ok := p.FunctionResponse.Response["error"]; ok {
			res.Error = fmt.Sprint(e)
		} else {
			res.Result = p.FunctionResponse.Response["result"]
		}
		return messages.ToolCallResultContent(res), true
	}
	return messages.StandardContent{}, false
}

package messages

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) String() string { return string(r) }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is a single turn of a conversation.
type Message struct {
	Role    Role
	Content []Part
	// ToolCallRequests holds the tool calls an assistant turn asked for.
	ToolCallRequests []ToolCallRequest
}

// System creates a system message with a single text part.
func System(text string) Message {
	return Message{Role: RoleSystem, Content: []Part{Text(text)}}
}

// User creates a user message from the given parts.
func User(parts ...Part) Message {
	return Message{Role: RoleUser, Content: parts}
}

// UserText creates a user message with a single text part.
func UserText(text string) Message {
	return User(Text(text))
}

// Assistant creates an assistant message, optionally carrying tool call requests.
func Assistant(text string, calls ...ToolCallRequest) Message {
	msg := Message{Role: RoleAssistant, ToolCallRequests: calls}
	if text != "" {
		msg.Content = []Part{Text(text)}
	}
	return msg
}

// ToolResults creates a tool message that carries the results of one or more tool calls.
func ToolResults(results ...ToolCallResult) Message {
	parts := make([]Part, len(results))
	for i, r := range results {
		parts[i] = r
	}
	return Message{Role: RoleTool, Content: parts}
}

// Text returns the concatenation of all text parts separated by newlines.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Content {
		if t, ok := p.(TextPart); ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Files returns the file parts of the message in order.
func (m Message) Files() []File {
	var files []File
	for _, p := range m.Content {
		if f, ok := p.(File); ok {
			files = append(files, f)
		}
	}
	return files
}

// ToolCallResults returns the tool call result parts of the message in order.
func (m Message) ToolCallResults() []ToolCallResult {
	var results []ToolCallResult
	for _, p := range m.Content {
		if r, ok := p.(ToolCallResult); ok {
			results = append(results, r)
		}
	}
	return results
}

// AllToolCallRequests returns the tool call requests of the message, both the
// ones in ToolCallRequests and the ones embedded as parts.
func (m Message) AllToolCallRequests() []ToolCallRequest {
	calls := append([]ToolCallRequest(nil), m.ToolCallRequests...)
	for _, p := range m.Content {
		if r, ok := p.(ToolCallRequest); ok {
			calls = append(calls, r)
		}
	}
	return calls
}

var messageJSON = []byte(`{}`)

// MarshalJSON writes role first, then content, then tool_call_requests.
func (m Message) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(messageJSON, "role", string(m.Role))
	if err != nil {
		return nil, err
	}

	content := m.Content
	if content == nil {
		content = []Part{}
	}
	cb, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "content", cb)
	if err != nil {
		return nil, err
	}

	if len(m.ToolCallRequests) > 0 {
		tb, err := json.Marshal(m.ToolCallRequests)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tool call requests: %w", err)
		}
		result, err = sjson.SetRawBytes(result, "tool_call_requests", tb)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnmarshalJSON accepts content either as a plain string or as a list of typed parts.
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	role := gjson.GetBytes(data, "role")
	if !role.Exists() {
		return fmt.Errorf("missing required field 'role'")
	}
	m.Role = Role(role.String())
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}

	content := gjson.GetBytes(data, "content")
	switch {
	case !content.Exists() || content.Type == gjson.Null:
		m.Content = nil
	case content.Type == gjson.String:
		m.Content = []Part{Text(content.String())}
	case content.IsArray():
		parts, err := unmarshalParts(content)
		if err != nil {
			return err
		}
		m.Content = parts
	default:
		return fmt.Errorf("content must be a string or an array")
	}

	if calls := gjson.GetBytes(data, "tool_call_requests"); calls.Exists() && calls.IsArray() {
		m.ToolCallRequests = nil
		if err := json.Unmarshal([]byte(calls.Raw), &m.ToolCallRequests); err != nil {
			return fmt.Errorf("invalid tool_call_requests: %w", err)
		}
	}
	return nil
}

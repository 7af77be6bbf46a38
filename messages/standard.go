package messages

// Standard is the caller-facing, vendor-neutral shape of a stored message.
// Providers produce it from their own wire history in StandardizeMessages.
type Standard struct {
	Role    Role              `json:"role"`
	Content []StandardContent `json:"content"`
}

// StandardContent is one element of a Standard message.
type StandardContent struct {
	Type            string           `json:"type"`
	Text            string           `json:"text,omitempty"`
	ImageURL        *URLRef          `json:"image_url,omitempty"`
	AudioURL        *URLRef          `json:"audio_url,omitempty"`
	DocumentURL     *URLRef          `json:"document_url,omitempty"`
	ToolCallRequest *ToolCallRequest `json:"tool_call_request,omitempty"`
	ToolCallResult  *ToolCallResult  `json:"tool_call_result,omitempty"`
}

// URLRef wraps a URL the way the standard shape nests file references.
type URLRef struct {
	URL string `json:"url"`
}

const (
	StandardText            = "text"
	StandardImageURL        = "image_url"
	StandardAudioURL        = "audio_url"
	StandardDocumentURL     = "document_url"
	StandardToolCallRequest = "tool_call_request"
	StandardToolCallResult  = "tool_call_result"
)

// TextContent creates a text StandardContent.
func TextContent(text string) StandardContent {
	return StandardContent{Type: StandardText, Text: text}
}

// FileContent creates the StandardContent for a file, picking the url kind from its content type.
func FileContent(f File) StandardContent {
	ref := &URLRef{URL: f.DataURL()}
	switch {
	case f.IsAudio():
		return StandardContent{Type: StandardAudioURL, AudioURL: ref}
	case f.IsImage() || f.ContentType == "":
		return StandardContent{Type: StandardImageURL, ImageURL: ref}
	default:
		return StandardContent{Type: StandardDocumentURL, DocumentURL: ref}
	}
}

// ToolCallRequestContent wraps a tool call request.
func ToolCallRequestContent(r ToolCallRequest) StandardContent {
	return StandardContent{Type: StandardToolCallRequest, ToolCallRequest: &r}
}

// ToolCallResultContent wraps a tool call result.
func ToolCallResultContent(r ToolCallResult) StandardContent {
	return StandardContent{Type: StandardToolCallResult, ToolCallResult: &r}
}

// IsToolResults reports whether every content element is a tool call result.
func (s Standard) IsToolResults() bool {
	if len(s.Content) == 0 {
		return false
	}
	for _, c := range s.Content {
		if c.Type != StandardToolCallResult {
			return false
		}
	}
	return true
}

// AppendStandard appends msg to out. A tool-results turn that directly follows
// another tool-results turn is merged into it, so vendors that emit one message
// per tool result still produce a single turn.
func AppendStandard(out []Standard, msg Standard) []Standard {
	if n := len(out); n > 0 && msg.IsToolResults() && out[n-1].IsToolResults() {
		out[n-1].Content = append(out[n-1].Content, msg.Content...)
		return out
	}
	return append(out, msg)
}

// ToStandard converts a conversation into the standard shape. Tool messages
// become user turns holding tool call results.
func ToStandard(conv []Message) []Standard {
	out := make([]Standard, 0, len(conv))
	for _, m := range conv {
		role := m.Role
		if role == RoleTool {
			role = RoleUser
		}
		std := Standard{Role: role}
		for _, p := range m.Content {
			switch p := p.(type) {
			case TextPart:
				std.Content = append(std.Content, TextContent(p.Text))
			case File:
				std.Content = append(std.Content, FileContent(p))
			case ToolCallRequest:
				std.Content = append(std.Content, ToolCallRequestContent(p))
			case ToolCallResult:
				std.Content = append(std.Content, ToolCallResultContent(p))
			}
		}
		for _, r := range m.ToolCallRequests {
			std.Content = append(std.Content, ToolCallRequestContent(r))
		}
		out = AppendStandard(out, std)
	}
	return out
}

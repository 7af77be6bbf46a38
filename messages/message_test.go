package messages

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMessage_MarshalJSON_RoleFirst(t *testing.T) {
	msg := User(Text("hello"), ImageURL("https://example.com/cat.png"))
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	s := string(b)
	assert.Less(t, strings.Index(s, `"role"`), strings.Index(s, `"content"`), "role must precede content: %s", s)
	assert.Equal(t, "user", gjson.GetBytes(b, "role").String())
	assert.Equal(t, "text", gjson.GetBytes(b, "content.0.type").String())
	assert.Equal(t, "image/png", gjson.GetBytes(b, "content.1.content_type").String())
	assert.False(t, gjson.GetBytes(b, "tool_call_requests").Exists())
}

func TestMessage_RoundTrip(t *testing.T) {
	dur := 2.5
	conv := []Message{
		System("be terse"),
		User(Text("what is in this clip?"), File{ContentType: "audio/mpeg", Data: []byte("abc"), DurationSeconds: &dur}),
		Assistant("", ToolCallRequest{ID: "call_1", ToolName: "lookup", ToolInput: map[string]any{"q": "x"}}),
		ToolResults(ToolCallResult{ID: "call_1", ToolName: "lookup", Result: "found"}),
	}

	b, err := json.Marshal(conv)
	require.NoError(t, err)

	var got []Message
	require.NoError(t, json.Unmarshal(b, &got))
	require.Len(t, got, 4)

	assert.Equal(t, RoleSystem, got[0].Role)
	assert.Equal(t, "be terse", got[0].Text())

	files := got[1].Files()
	require.Len(t, files, 1)
	assert.Equal(t, []byte("abc"), files[0].Data)
	require.NotNil(t, files[0].DurationSeconds)
	assert.InDelta(t, 2.5, *files[0].DurationSeconds, 0.0001)

	require.Len(t, got[2].ToolCallRequests, 1)
	assert.Equal(t, "lookup", got[2].ToolCallRequests[0].ToolName)
	assert.Equal(t, map[string]any{"q": "x"}, got[2].ToolCallRequests[0].ToolInput)

	results := got[3].ToolCallResults()
	require.Len(t, results, 1)
	assert.Equal(t, "found", results[0].Output())
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		check   func(t *testing.T, m Message)
	}{
		{
			name:  "string content",
			input: `{"role":"user","content":"hi"}`,
			check: func(t *testing.T, m Message) {
				assert.Equal(t, "hi", m.Text())
			},
		},
		{
			name:  "null content",
			input: `{"role":"assistant","content":null}`,
			check: func(t *testing.T, m Message) {
				assert.Empty(t, m.Content)
			},
		},
		{name: "missing role", input: `{"content":"hi"}`, wantErr: "missing required field 'role'"},
		{name: "unknown role", input: `{"role":"robot","content":"hi"}`, wantErr: `unknown role "robot"`},
		{name: "unknown part", input: `{"role":"user","content":[{"type":"video"}]}`, wantErr: `unknown type "video"`},
		{name: "file without source", input: `{"role":"user","content":[{"type":"file"}]}`, wantErr: "invalid file part at 0"},
		{name: "invalid json", input: `{"role":`, wantErr: "invalid json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			err := m.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, m)
		})
	}
}

func TestFile_Helpers(t *testing.T) {
	f := InlineFile("image/png", []byte{1, 2, 3})
	assert.True(t, f.IsImage())
	assert.False(t, f.IsAudio())
	assert.Equal(t, "png", f.Format())
	assert.Equal(t, "data:image/png;base64,AQID", f.DataURL())

	assert.Equal(t, "mp3", File{ContentType: "audio/mpeg"}.Format())
	assert.Equal(t, "", File{ContentType: "garbage"}.Format())
	assert.True(t, File{ContentType: "application/pdf"}.IsPDF())
	assert.Equal(t, "image/jpeg", ImageURL("https://example.com/a.jpg").ContentType)
}

func TestToolCallResult_Output(t *testing.T) {
	assert.Equal(t, "Error: boom", ToolCallResult{ID: "1", Error: "boom", Result: "ignored"}.Output())
	assert.Equal(t, `{"a":1}`, ToolCallResult{ID: "1", Result: map[string]any{"a": 1}}.Output())
	assert.Equal(t, "", ToolCallResult{ID: "1"}.Output())
	assert.Equal(t, "{}", ToolCallRequest{ID: "1"}.ArgumentsJSON())
}

func TestToStandard_CoalescesToolResults(t *testing.T) {
	conv := []Message{
		UserText("weather in paris and rome?"),
		Assistant("", ToolCallRequest{ID: "a", ToolName: "weather"}, ToolCallRequest{ID: "b", ToolName: "weather"}),
		ToolResults(ToolCallResult{ID: "a", ToolName: "weather", Result: "sunny"}),
		ToolResults(ToolCallResult{ID: "b", ToolName: "weather", Result: "rain"}),
		Assistant("sunny and rain"),
	}

	std := ToStandard(conv)
	require.Len(t, std, 4)
	assert.Equal(t, RoleUser, std[2].Role)
	require.Len(t, std[2].Content, 2)
	assert.Equal(t, "a", std[2].Content[0].ToolCallResult.ID)
	assert.Equal(t, "b", std[2].Content[1].ToolCallResult.ID)
	assert.Equal(t, "sunny and rain", std[3].Content[0].Text)
}

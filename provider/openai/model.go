package openai

import (
	"strings"

	"github.com/openai/openai-go"
)

// Well known model identifiers.
const (
	GPT4o             = openai.ChatModelGPT4o
	GPT4oMini         = openai.ChatModelGPT4oMini
	GPT4oAudioPreview = openai.ChatModelGPT4oAudioPreview
	GPT4Turbo         = openai.ChatModelGPT4Turbo
	ChatGPT4oLatest   = openai.ChatModelChatgpt4oLatest
	O1                = openai.ChatModelO1
	O1Mini            = openai.ChatModelO1Mini
	O1Preview         = openai.ChatModelO1Preview
)

var families = []string{"gpt-4", "gpt-3.5", "chatgpt-", "o1", "o3", "o4"}

// Models lists the models the package knows by name.
func Models() []string {
	return []string{GPT4o, GPT4oMini, GPT4oAudioPreview, GPT4Turbo, ChatGPT4oLatest, O1, O1Mini, O1Preview}
}

func isFamily(model string) bool {
	for _, f := range families {
		if strings.HasPrefix(model, f) {
			return true
		}
	}
	return false
}

// isReasoning reports whether model is an o-series reasoning model.
func isReasoning(model string) bool {
	return len(model) > 1 && model[0] == 'o' && model[1] >= '0' && model[1] <= '9'
}

// noSystemRole reports whether model rejects the system role.
func noSystemRole(model string) bool {
	return strings.HasPrefix(model, O1Mini) || strings.HasPrefix(model, O1Preview)
}

func acceptsAudio(model string) bool {
	return strings.Contains(model, "audio")
}

// streamable reports whether model can stream. The full o1 model can not,
// its dated snapshots included.
func streamable(model string) bool {
	return model != O1 && !strings.HasPrefix(model, O1+"-2")
}

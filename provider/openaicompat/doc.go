// Package openaicompat holds the chat-completions wire format shared by the
// vendors that speak it (OpenAI and Fireworks): request and response types,
// the conversion from the vendor-neutral conversation, stream delta parsing
// and error classification.
package openaicompat

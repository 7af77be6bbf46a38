// Package messages defines the vendor-neutral conversation model that every
// provider translates into its own wire format.
//
// A conversation is an ordered slice of Message values. Each message has a
// role and a list of typed parts:
//
//   - Text: plain text
//   - File: an image, audio clip or document, by URL or inline bytes
//   - ToolCallRequest: a tool invocation the model asked for
//   - ToolCallResult: the outcome of running a requested tool
//
// Messages are immutable once they are handed to a provider. The JSON form
// always serializes "role" before "content" because several vendor-side
// validators are sensitive to field order.
//
// Example usage:
//
//	conv := []messages.Message{
//	    messages.System("You extract cities from text. Reply in JSON."),
//	    messages.User(
//	        messages.Text("Which city is in this picture?"),
//	        messages.ImageURL("https://example.com/paris.jpg"),
//	    ),
//	}
//
// Stored vendor-shaped histories are converted back into the Standard shape
// by each provider's StandardizeMessages.
package messages

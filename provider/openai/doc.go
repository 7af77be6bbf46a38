/*
Package openai serves OpenAI chat models through the chat-completions API.

The adapter plugs into httpbase, which owns the request loop, retries and
streaming. What lives here is the OpenAI-specific part:

  - o1-mini and o1-preview have no system role, system messages are sent as user turns
  - o-series reasoning models take max_completion_tokens and ignore temperature
  - only the audio-preview models accept audio input
  - o1 itself can not stream
  - structured generation uses a strict json_schema response format

# Usage

	p, err := openai.FromEnv(httpbase.Settings{})
	if err != nil {
		return err
	}
	options, _ := provider.NewOptions(openai.GPT4oMini, provider.Temperature(0))
	out, err := p.Complete(ctx, nil, conv, options, provider.TextOutput)

Credentials come from OPENAI_API_KEY. Token usage is requested on streams
with stream_options.include_usage, so streamed and non-streamed calls are
priced from the same reported counts.
*/
package openai

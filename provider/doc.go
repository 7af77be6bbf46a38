// Package provider is the vendor-neutral surface of the completion layer.
//
// A Provider turns a conversation ([]messages.Message) and Options into a
// StructuredOutput, either in one blocking call (Complete) or as an ordered
// stream of progressively more complete outputs (Stream). Vendors differ in
// wire format, streaming protocol, token accounting and error payloads; those
// differences live in the adapter packages (provider/openai, provider/google,
// ...) on top of the shared driver in provider/httpbase.
//
// Design decisions:
//   - Closed set of vendors: Name is a tagged variant and the registry maps a
//     Name to a constructed adapter.
//   - Caller-owned call context: Call carries the excluded-region set and the
//     raw completions of one logical call. Nothing is kept in globals.
//   - Streaming over channels: Stream starts a single producer goroutine that
//     pushes Chunk values and ends with exactly one Final or Failure event
//     before the channel is closed. Cancelling the context closes the
//     underlying HTTP body.
//   - Typed errors: every terminal failure is an *Error carrying a Kind and
//     the retry/capture/bill decisions for that kind.
//
// Example usage:
//
//	call := provider.NewCall()
//	opts, _ := provider.NewOptions("gpt-4o-mini-2024-07-18",
//	    provider.Temperature(0),
//	    provider.StructuredSchema(schema),
//	)
//	events, err := p.Stream(ctx, call, conv, opts, provider.JSONOutput, provider.PassthroughPartial)
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    switch ev := ev.(type) {
//	    case provider.Chunk:
//	        render(ev.Output)
//	    case provider.Final:
//	        store(ev.Output, ev.Usage)
//	    case provider.Failure:
//	        return ev.Err
//	    }
//	}
package provider

// Package httpbase drives a completion against any vendor that speaks JSON
// over HTTP. A vendor plugs in through the Adapter interface, which knows its
// wire format, and gets a full provider.Provider in return.
//
// The driver owns everything that is the same for every vendor: sending the
// request, retrying transient network failures, failing over between
// regions, turning a streamed body into frames, reassembling tool calls,
// aggregating partial JSON, pricing the usage and publishing the run record.
package httpbase

package httpbase

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/casualjim/hoot/internal/jsonstream"
	"github.com/casualjim/hoot/provider"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitEvents(t *testing.T, events []provider.StreamEvent) ([]provider.Chunk, provider.StreamEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	var chunks []provider.Chunk
	for _, ev := range events[:len(events)-1] {
		c, ok := ev.(provider.Chunk)
		require.True(t, ok, "only the last event may be terminal, got %T", ev)
		chunks = append(chunks, c)
	}
	return chunks, events[len(events)-1]
}

func TestStream_ConvergesWithComplete(t *testing.T) {
	const document = `{"name":"hoot","tags":["a","b"],"count":12}`
	schema := map[string]any{"type": "object"}

	streamSrv := newServer(t, sseHandler(
		content(`{"name":"ho`),
		content(`ot","tags":["a"`),
		content(`,"b"],"cou`),
		content(`nt":12}`),
		`{"usage":{"in":10,"out":9}}`,
		"[DONE]",
	))
	completeSrv := newServer(t, jsonHandler(`{"content":`+quote(document)+`,"usage":{"in":10,"out":9}}`))

	options, err := provider.NewOptions("m1", provider.OutputSchema(schema))
	require.NoError(t, err)

	full, err := New(newFakeAdapter(t, completeSrv.URL), Settings{}).Complete(context.Background(), nil, conversation(), options, nil)
	require.NoError(t, err)

	runs := &recordingPublisher{}
	call := provider.NewCall()
	events, err := New(newFakeAdapter(t, streamSrv.URL), Settings{Runs: runs}).Stream(context.Background(), call, conversation(), options, nil, nil)
	require.NoError(t, err)

	chunks, last := splitEvents(t, collect(t, events))
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.True(t, jsonstream.Extends(chunks[i-1].Output.Output, chunks[i].Output.Output),
			"chunk %d does not extend chunk %d", i, i-1)
	}
	assert.Equal(t, map[string]any{"name": "ho"}, chunks[0].Output.Output)

	final, ok := last.(provider.Final)
	require.True(t, ok, "expected final event, got %T", last)
	assert.Equal(t, full.Output, final.Output.Output)
	assert.True(t, jsonstream.Extends(chunks[len(chunks)-1].Output.Output, final.Output.Output))
	require.NotNil(t, final.Usage)
	assert.Equal(t, 9.0, *final.Usage.CompletionTokenCount)
	assert.NotNil(t, final.Usage.TotalCostUSD())
	for _, c := range chunks {
		assert.Equal(t, final.RunID, c.RunID)
	}

	rc := call.LastCompletion()
	assert.Equal(t, document, rc.Response)
	assert.Nil(t, rc.Error)

	records := runs.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Stream)
	assert.Equal(t, final.RunID, records[0].RunID)
}

func TestStream_TextMode(t *testing.T) {
	srv := newServer(t, sseHandler(content("Hel"), content("lo"), `{"content":""}`, content(" world"), "[DONE]"))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, provider.TextOutput, nil)
	require.NoError(t, err)

	chunks, last := splitEvents(t, collect(t, events))
	var partials []any
	for _, c := range chunks {
		partials = append(partials, c.Output.Output)
	}
	assert.Equal(t, []any{"Hel", "Hello", "Hello world"}, partials)

	final, ok := last.(provider.Final)
	require.True(t, ok)
	assert.Equal(t, "Hello world", final.Output.Output)
}

func TestStream_ThinkTags(t *testing.T) {
	srv := newServer(t, sseHandler(content("<thi"), content("nk>plan"), content("</think>"), content("Hello"), "[DONE]"))
	adapter := newFakeAdapter(t, srv.URL)
	adapter.thinkTags = true
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(adapter, Settings{}).Stream(context.Background(), nil, conversation(), options, provider.TextOutput, nil)
	require.NoError(t, err)

	chunks, last := splitEvents(t, collect(t, events))
	for _, c := range chunks {
		if s, ok := c.Output.Output.(string); ok {
			assert.NotContains(t, s, "think")
		}
	}
	final, ok := last.(provider.Final)
	require.True(t, ok)
	assert.Equal(t, "Hello", final.Output.Output)
	assert.Equal(t, "plan", final.Output.Reasoning())
}

func TestStream_MaxTokens(t *testing.T) {
	srv := newServer(t, sseHandler(
		content(`{"a":"long`),
		`{"finish":"length"}`,
		`{"usage":{"in":10,"out":7}}`,
		"[DONE]",
	))
	runs := &recordingPublisher{}
	options, err := provider.NewOptions("m1", provider.OutputSchema(map[string]any{"type": "object"}))
	require.NoError(t, err)

	call := provider.NewCall()
	events, err := New(newFakeAdapter(t, srv.URL), Settings{Runs: runs}).Stream(context.Background(), call, conversation(), options, nil, nil)
	require.NoError(t, err)

	_, last := splitEvents(t, collect(t, events))
	failure, ok := last.(provider.Failure)
	require.True(t, ok, "expected failure, got %T", last)
	pe, ok := provider.AsError(failure.Err)
	require.True(t, ok)
	assert.Equal(t, provider.KindMaxTokensExceeded, pe.Kind)
	assert.True(t, pe.StoreTaskRun)

	rc := call.LastCompletion()
	assert.Equal(t, 7.0, *rc.Usage.CompletionTokenCount)
	assert.NotNil(t, rc.Usage.CompletionCostUSD)
	assert.Equal(t, `{"a":"long`, rc.Response)

	records := runs.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Billable())
}

func TestStream_FinishFrameContent(t *testing.T) {
	tests := []struct {
		name     string
		finish   string
		want     error
		wantCost bool
	}{
		{"max tokens", "length", provider.ErrMaxTokensExceeded, true},
		{"content filter", "content_filter", provider.ErrContentModeration, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, sseHandler(
				content("Owls hunt"),
				`{"content":" at night","finish":"`+tt.finish+`"}`,
				`{"usage":{"in":10,"out":7}}`,
				"[DONE]",
			))
			options, err := provider.NewOptions("m1")
			require.NoError(t, err)

			call := provider.NewCall()
			events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), call, conversation(), options, provider.TextOutput, nil)
			require.NoError(t, err)

			_, last := splitEvents(t, collect(t, events))
			failure, ok := last.(provider.Failure)
			require.True(t, ok, "expected failure, got %T", last)
			require.ErrorIs(t, failure.Err, tt.want)

			rc := call.LastCompletion()
			assert.Equal(t, "Owls hunt at night", rc.Response)
			assert.Equal(t, 7.0, *rc.Usage.CompletionTokenCount)
			if tt.wantCost {
				assert.NotNil(t, rc.Usage.CompletionCostUSD)
			} else {
				assert.Nil(t, rc.Usage.CompletionCostUSD)
				assert.Nil(t, rc.Usage.PromptCostUSD)
			}
		})
	}
}

func TestStream_ToolCallsOnly(t *testing.T) {
	srv := newServer(t, sseHandler(
		`{"tool_calls":[{"index":0,"id":"call_1","name":"lookup","args":"{\"q\":"}]}`,
		`{"tool_calls":[{"index":0,"args":"\"hoot\"}"}]}`,
		`{"finish":"tool_calls"}`,
		"[DONE]",
	))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, nil, nil)
	require.NoError(t, err)

	_, last := splitEvents(t, collect(t, events))
	final, ok := last.(provider.Final)
	require.True(t, ok, "expected final, got %T", last)
	assert.Equal(t, map[string]any{}, final.Output.Output)
	require.Len(t, final.Output.ToolCalls, 1)
	assert.Equal(t, "call_1", final.Output.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"q": "hoot"}, final.Output.ToolCalls[0].ToolInput)
}

func TestStream_InvalidToolArguments(t *testing.T) {
	srv := newServer(t, sseHandler(
		`{"tool_calls":[{"index":0,"id":"call_1","name":"lookup","args":"{\"q\":"}]}`,
		"[DONE]",
	))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, nil, nil)
	require.NoError(t, err)

	_, last := splitEvents(t, collect(t, events))
	failure, ok := last.(provider.Failure)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, provider.ErrUnknownProvider)
}

func TestStream_RetriesBeforeFirstChunk(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, sseHandler(content("{}"), "[DONE]"))
	client := &http.Client{Transport: flakyTransport(1, io.ErrUnexpectedEOF, &hits)}
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	call := provider.NewCall()
	events, err := New(newFakeAdapter(t, srv.URL), Settings{Client: client}).Stream(context.Background(), call, conversation(), options, nil, nil)
	require.NoError(t, err)

	_, last := splitEvents(t, collect(t, events))
	_, ok := last.(provider.Final)
	assert.True(t, ok, "expected final, got %T", last)
	assert.EqualValues(t, 2, hits.Load())
	assert.Len(t, call.Completions(), 2)
}

func TestStream_NoRetryAfterFirstChunk(t *testing.T) {
	var hits atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: " + content("Hel") + "\n\n"))
		w.(http.Flusher).Flush()
		panic(http.ErrAbortHandler)
	}))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, provider.TextOutput, nil)
	require.NoError(t, err)

	chunks, last := splitEvents(t, collect(t, events))
	require.Len(t, chunks, 1)
	failure, ok := last.(provider.Failure)
	require.True(t, ok, "expected failure, got %T", last)
	assert.ErrorIs(t, failure.Err, provider.ErrRemoteDisconnect)
	assert.EqualValues(t, 1, hits.Load())
}

func TestStream_IdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: " + content("Hel") + "\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release) })
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{StreamIdleTimeout: 50 * time.Millisecond}).
		Stream(context.Background(), nil, conversation(), options, provider.TextOutput, nil)
	require.NoError(t, err)

	_, last := splitEvents(t, collect(t, events))
	failure, ok := last.(provider.Failure)
	require.True(t, ok, "expected failure, got %T", last)
	assert.ErrorIs(t, failure.Err, provider.ErrReadTimeout)
}

func TestStream_Cancellation(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: " + content("Hel") + "\n\n"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(ctx, nil, conversation(), options, provider.TextOutput, nil)
	require.NoError(t, err)

	select {
	case ev := <-events:
		_, ok := ev.(provider.Chunk)
		require.True(t, ok, "expected chunk, got %T", ev)
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk received")
	}
	cancel()

	for _, ev := range collect(t, events) {
		_, isFinal := ev.(provider.Final)
		assert.False(t, isFinal)
		if f, ok := ev.(provider.Failure); ok {
			assert.ErrorIs(t, f.Err, context.Canceled)
		}
	}
}

func TestStream_PartialFactoryErrorsSkipChunks(t *testing.T) {
	srv := newServer(t, sseHandler(content("a"), content("b"), content("c"), "[DONE]"))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	partial := func(v any) (any, error) {
		if v == "ab" {
			return nil, errBoom
		}
		return v, nil
	}
	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, provider.TextOutput, partial)
	require.NoError(t, err)

	chunks, last := splitEvents(t, collect(t, events))
	require.Len(t, chunks, 2)
	assert.Equal(t, "a", chunks[0].Output.Output)
	assert.Equal(t, "abc", chunks[1].Output.Output)
	_, ok := last.(provider.Final)
	assert.True(t, ok)
}

func TestStream_ErrorStatus(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad schema"}}`))
	}))
	options, err := provider.NewOptions("m1")
	require.NoError(t, err)

	events, err := New(newFakeAdapter(t, srv.URL), Settings{}).Stream(context.Background(), nil, conversation(), options, nil, nil)
	require.NoError(t, err)

	evs := collect(t, events)
	require.Len(t, evs, 1)
	failure, ok := evs[0].(provider.Failure)
	require.True(t, ok)
	assert.ErrorIs(t, failure.Err, provider.ErrBadRequest)
	assert.Contains(t, failure.Err.Error(), "bad schema")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

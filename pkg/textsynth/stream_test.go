package textsynth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamRequest(t *testing.T) *CompletionRequest {
	t.Helper()
	req, err := NewCompletionRequestBuilder().Prompt("Once upon a time").MaxTokens(3).Build()
	require.NoError(t, err)
	return req
}

// writeChunks writes each chunk followed by a blank line, flushing after each.
func writeChunks(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		flusher, _ := w.(http.Flusher)
		for _, chunk := range chunks {
			_, _ = io.WriteString(w, chunk+"\n\n")
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func TestClient_StreamCompletions(t *testing.T) {
	api := newFakeAPI(t, writeChunks(
		`{"text":" there","reached_end":false}`,
		`{"text":" was","reached_end":false}`,
		`{"text":" a","reached_end":true,"input_tokens":4,"output_tokens":3}`,
	))

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	chunks, err := stream.Collect()
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, TextList{" there"}, chunks[0].Text)
	assert.Equal(t, FinishReasonNone, chunks[0].FinishReason)
	assert.True(t, chunks[2].ReachedEnd)
	assert.Equal(t, FinishReasonLength, chunks[2].FinishReason)
	assert.Equal(t, true, api.body(t)["stream"])
	assert.Equal(t, "POST /engines/gptj_6B/completions", api.lastPath.Load())
}

func TestStream_ChunkCountMatches(t *testing.T) {
	for _, n := range []int{1, 2, 10} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			chunks := make([]string, n)
			for i := range chunks {
				chunks[i] = fmt.Sprintf(`{"text":"%d","reached_end":%t}`, i, i == n-1)
			}
			api := newFakeAPI(t, writeChunks(chunks...))

			stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
			require.NoError(t, err)
			var got []string
			for chunk, err := range stream.All() {
				require.NoError(t, err)
				got = append(got, chunk.Joined())
			}
			assert.Len(t, got, n)
			assert.Equal(t, fmt.Sprint(n-1), got[n-1])
		})
	}
}

func TestStream_AcceptsArbitraryWhitespace(t *testing.T) {
	body := io.NopCloser(strings.NewReader(" {\"text\":\"a\"}\r\n\t{\"text\":[\"b\",\"c\"]}{\"text\":\"d\",\"reached_end\":true}\n\n"))
	stream := newCompletionStream(body, nil)

	chunks, err := stream.Collect()
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, TextList{"b", "c"}, chunks[1].Text)
	assert.Equal(t, FinishReasonStop, chunks[2].FinishReason)
}

func TestStream_StopsAfterReachedEnd(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"text":"a","reached_end":true}` + "\n\n" + `{"text":"ignored"}`))
	chunks, err := newCompletionStream(body, nil).Collect()
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestStream_EndsCleanlyWithoutReachedEnd(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"text":"a"}` + "\n\n   \n"))
	chunks, err := newCompletionStream(body, nil).Collect()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, FinishReasonNone, chunks[0].FinishReason)
}

func TestStream_MalformedChunk(t *testing.T) {
	api := newFakeAPI(t, writeChunks(
		`{"text":"ok","reached_end":false}`,
		`{"text": oops}`,
	))

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "ok", stream.Current().Joined())
	assert.False(t, stream.Next())
	e := requireErrorType(t, stream.Err(), ErrorTypeDecode)
	assert.Contains(t, string(e.Body), "oops")
	assert.False(t, stream.Next())
}

func TestStream_MalformedChunkWhileConnectionHeldOpen(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(`{"text":"ok","reached_end":false}`, `{"text": oops}`)(w, r)
		<-r.Context().Done()
	})

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	require.True(t, stream.Next())

	ended := make(chan bool, 1)
	go func() { ended <- stream.Next() }()
	select {
	case more := <-ended:
		assert.False(t, more)
	case <-time.After(5 * time.Second):
		_ = stream.Close()
		t.Fatal("Next blocked on a malformed chunk")
	}
	e := requireErrorType(t, stream.Err(), ErrorTypeDecode)
	assert.Contains(t, string(e.Body), "oops")
}

func TestStream_CloseUnblocksNext(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(`{"text":"first","reached_end":false}`)(w, r)
		<-r.Context().Done()
	})

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	require.True(t, stream.Next())

	ended := make(chan bool, 1)
	go func() { ended <- stream.Next() }()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, stream.Close())

	select {
	case more := <-ended:
		assert.False(t, more)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not unblock Next")
	}
	assert.NoError(t, stream.Err())
	assert.Equal(t, "first", stream.Current().Joined())
	assert.False(t, stream.Next())
}

func TestStream_DecodeFailureRecordedInMetrics(t *testing.T) {
	api := newFakeAPI(t, writeChunks(
		`{"text":"ok","reached_end":false}`,
		`{"text":"tr`,
	))
	reg := prometheus.NewRegistry()
	c, err := NewClientBuilder().APIKey("k").BaseURL(api.server.URL).Metrics(reg).Build()
	require.NoError(t, err)

	stream, err := c.StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	_, err = stream.Collect()
	requireErrorType(t, err, ErrorTypeDecode)

	assert.Equal(t, 1.0, requestsTotal(t, reg, "decode_error"))
	assert.Equal(t, 0.0, requestsTotal(t, reg, "200"))
}

// requestsTotal reads textsynth_requests_total for the given status label.
func requestsTotal(t *testing.T, reg *prometheus.Registry, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "textsynth_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == status {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestStream_TruncatedTrailingData(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"text":"a"}` + "\n\n" + `{"text":"b`))
	stream := newCompletionStream(body, nil)

	var got []string
	var streamErr error
	for chunk, err := range stream.All() {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, chunk.Joined())
	}
	assert.Equal(t, []string{"a"}, got)
	e := requireErrorType(t, streamErr, ErrorTypeDecode)
	assert.Equal(t, `{"text":"b`, string(e.Body))
}

func TestClient_StreamCompletions_HTTPError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	})

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	assert.Nil(t, stream)
	e := requireErrorType(t, err, ErrorTypeHTTPStatus)
	assert.True(t, e.IsRateLimited())
	assert.Equal(t, `{"error":"rate limited"}`, string(e.Body))
}

func TestStream_CloseMidStreamThenNewCall(t *testing.T) {
	serverDone := make(chan struct{}, 1)
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/credits" {
			respondJSON(`{"credits":7}`)(w, r)
			return
		}
		writeChunks(`{"text":"first","reached_end":false}`)(w, r)
		<-r.Context().Done()
		serverDone <- struct{}{}
	})
	c := api.client(t)

	stream, err := c.StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	for chunk, err := range stream.All() {
		require.NoError(t, err)
		assert.Equal(t, "first", chunk.Joined())
		break
	}
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	assert.False(t, stream.Next())

	select {
	case <-serverDone:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the closed stream")
	}

	resp, err := c.Credits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.Credits)
}

func TestStream_ContextCanceledMidStream(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(`{"text":"first","reached_end":false}`)(w, r)
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := api.client(t).StreamCompletions(ctx, GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	require.True(t, stream.Next())
	cancel()

	assert.False(t, stream.Next())
	requireErrorType(t, stream.Err(), ErrorTypeNetwork)
	require.NoError(t, stream.Close())
}

func TestStream_TimeoutCoversBody(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeChunks(`{"text":"first","reached_end":false}`)(w, r)
		<-r.Context().Done()
	})
	c, err := NewClientBuilder().APIKey("k").BaseURL(api.server.URL).Timeout(100 * time.Millisecond).Build()
	require.NoError(t, err)

	stream, err := c.StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Next())
	assert.False(t, stream.Next())
	e := requireErrorType(t, stream.Err(), ErrorTypeNetwork)
	assert.True(t, e.IsTimeout())
}

func TestCollectCompletion(t *testing.T) {
	api := newFakeAPI(t, writeChunks(
		`{"text":["a","x"],"reached_end":false}`,
		`{"text":["b","y"],"reached_end":false}`,
		`{"text":["c","z"],"reached_end":true,"input_tokens":4,"output_tokens":3}`,
	))

	stream, err := api.client(t).StreamCompletions(context.Background(), GPTJ6B, streamRequest(t))
	require.NoError(t, err)
	resp, err := CollectCompletion(stream)
	require.NoError(t, err)

	assert.Equal(t, TextList{"abc", "xyz"}, resp.Text)
	assert.True(t, resp.ReachedEnd)
	assert.Equal(t, 4, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
	assert.Equal(t, FinishReasonLength, resp.FinishReason)
}

func TestClient_StreamChat(t *testing.T) {
	api := newFakeAPI(t, writeChunks(
		`{"text":"Hel","reached_end":false}`,
		`{"text":"lo","reached_end":true,"output_tokens":2}`,
	))
	req, err := NewChatRequestBuilder().Message("hi").Build()
	require.NoError(t, err)

	stream, err := api.client(t).StreamChat(context.Background(), GPTJ6B, req)
	require.NoError(t, err)
	resp, err := CollectCompletion(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Joined())
	assert.Equal(t, "POST /engines/gptj_6B/chat", api.lastPath.Load())
	assert.Equal(t, true, api.body(t)["stream"])
}

package textsynth

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionRequestBuilder_RequiresPrompt(t *testing.T) {
	req, err := NewCompletionRequestBuilder().MaxTokens(10).Build()
	assert.Nil(t, req)
	requireErrorType(t, err, ErrorTypeConfiguration)
}

func TestCompletionRequestBuilder_Ranges(t *testing.T) {
	tests := []struct {
		name  string
		build func(*CompletionRequestBuilder) *CompletionRequestBuilder
	}{
		{"max_tokens zero", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.MaxTokens(0) }},
		{"n too small", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.N(0) }},
		{"n too large", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.N(17) }},
		{"negative temperature", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.Temperature(-0.1) }},
		{"top_k too large", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.TopK(1001) }},
		{"top_p above one", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.TopP(1.5) }},
		{"presence penalty", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.PresencePenalty(2.5) }},
		{"frequency penalty", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.FrequencyPenalty(-3) }},
		{"typical_p zero", func(b *CompletionRequestBuilder) *CompletionRequestBuilder { return b.TypicalP(0) }},
		{"too many stops", func(b *CompletionRequestBuilder) *CompletionRequestBuilder {
			return b.Stop("a", "b", "c", "d", "e", "f")
		}},
		{"logit bias", func(b *CompletionRequestBuilder) *CompletionRequestBuilder {
			return b.LogitBias(map[string]float64{"42": 101})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(NewCompletionRequestBuilder().Prompt("p")).Build()
			requireErrorType(t, err, ErrorTypeConfiguration)
		})
	}

	req, err := NewCompletionRequestBuilder().Prompt("p").N(16).TopK(1000).TopP(0).TypicalP(1).
		PresencePenalty(-2).FrequencyPenalty(2).Build()
	require.NoError(t, err)
	assert.Equal(t, "p", req.Prompt())
}

func TestCompletionRequest_JSONOmitsUnsetFields(t *testing.T) {
	req, err := NewCompletionRequestBuilder().Prompt("Hello").MaxTokens(5).Stop("\n").Build()
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"Hello","max_tokens":5,"stop":["\n"]}`, string(raw))
}

func TestCompletionRequestBuilder_BuildIsIndependent(t *testing.T) {
	b := NewCompletionRequestBuilder().Prompt("p").Stop("x")
	first, err := b.Build()
	require.NoError(t, err)
	b.Stop("y").Prompt("q")

	raw, err := json.Marshal(first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"p","stop":["x"]}`, string(raw))
}

func TestTextList_UnmarshalJSON(t *testing.T) {
	var resp CompletionResponse
	require.NoError(t, json.Unmarshal([]byte(`{"text":"one","reached_end":true}`), &resp))
	assert.Equal(t, TextList{"one"}, resp.Text)

	require.NoError(t, json.Unmarshal([]byte(`{"text":["a","b"],"reached_end":true}`), &resp))
	assert.Equal(t, TextList{"a", "b"}, resp.Text)

	assert.Error(t, json.Unmarshal([]byte(`{"text":3}`), &resp))
}

func TestClient_Completions(t *testing.T) {
	api := newFakeAPI(t, respondJSON(`{"text":" there was a cat","reached_end":true,"input_tokens":4,"output_tokens":5}`))
	req, err := NewCompletionRequestBuilder().Prompt("Once upon a time").MaxTokens(5).Build()
	require.NoError(t, err)

	resp, err := api.client(t).Completions(context.Background(), GPTJ6B, req)
	require.NoError(t, err)
	assert.Equal(t, TextList{" there was a cat"}, resp.Text)
	assert.Equal(t, " there was a cat", resp.Joined())
	assert.True(t, resp.ReachedEnd)
	assert.Equal(t, 4, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
	assert.Equal(t, FinishReasonLength, resp.FinishReason)

	assert.Equal(t, "POST /engines/gptj_6B/completions", api.lastPath.Load())
	body := api.body(t)
	assert.Equal(t, "Once upon a time", body["prompt"])
	assert.NotContains(t, body, "stream")
}

func TestClient_Completions_FinishReason(t *testing.T) {
	api := newFakeAPI(t, respondJSON(`{"text":"done.","reached_end":true,"output_tokens":2}`))
	req, err := NewCompletionRequestBuilder().Prompt("p").MaxTokens(10).Build()
	require.NoError(t, err)

	resp, err := api.client(t).Completions(context.Background(), GPTJ6B, req)
	require.NoError(t, err)
	assert.Equal(t, FinishReasonStop, resp.FinishReason)

	api = newFakeAPI(t, respondJSON(`{"text":"x","reached_end":true,"output_tokens":10,"finish_reason":"stop"}`))
	resp, err = api.client(t).Completions(context.Background(), GPTJ6B, req)
	require.NoError(t, err)
	assert.Equal(t, FinishReasonStop, resp.FinishReason)
}

func TestClient_Completions_ServerError(t *testing.T) {
	api := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	})
	req, err := NewCompletionRequestBuilder().Prompt("p").Build()
	require.NoError(t, err)

	_, err = api.client(t).Completions(context.Background(), GPTJ6B, req)
	e := requireErrorType(t, err, ErrorTypeHTTPStatus)
	assert.Equal(t, 500, e.StatusCode)
	assert.Equal(t, "internal error", string(e.Body))
}

func TestClient_Completions_InvalidJSON(t *testing.T) {
	api := newFakeAPI(t, respondJSON(`{"text": `))
	req, err := NewCompletionRequestBuilder().Prompt("p").Build()
	require.NoError(t, err)

	_, err = api.client(t).Completions(context.Background(), GPTJ6B, req)
	e := requireErrorType(t, err, ErrorTypeDecode)
	assert.Equal(t, `{"text": `, string(e.Body))
}

func TestClient_Completions_RejectedBeforeSending(t *testing.T) {
	api := newFakeAPI(t, respondJSON(`{}`))
	c := api.client(t)
	req, err := NewCompletionRequestBuilder().Prompt("p").Build()
	require.NoError(t, err)

	_, err = c.Completions(context.Background(), M2M100_1_2B, req)
	requireErrorType(t, err, ErrorTypeConfiguration)
	_, err = c.Completions(context.Background(), nil, req)
	requireErrorType(t, err, ErrorTypeConfiguration)
	_, err = c.Completions(context.Background(), GPTJ6B, nil)
	requireErrorType(t, err, ErrorTypeConfiguration)
	_, err = c.StreamCompletions(context.Background(), M2M100_1_2B, req)
	requireErrorType(t, err, ErrorTypeConfiguration)

	assert.Zero(t, api.calls.Load())
}

func TestClient_Chat(t *testing.T) {
	api := newFakeAPI(t, respondJSON(`{"text":"Paris.","reached_end":true,"input_tokens":12,"output_tokens":2}`))
	req, err := NewChatRequestBuilder().
		Messages("What is the capital of France?").
		System("Answer briefly.").
		MaxTokens(20).
		Build()
	require.NoError(t, err)

	resp, err := api.client(t).Chat(context.Background(), GPTJ6B, req)
	require.NoError(t, err)
	assert.Equal(t, "Paris.", resp.Joined())
	assert.Equal(t, FinishReasonStop, resp.FinishReason)

	assert.Equal(t, "POST /engines/gptj_6B/chat", api.lastPath.Load())
	body := api.body(t)
	assert.Equal(t, []any{"What is the capital of France?"}, body["messages"])
	assert.Equal(t, "Answer briefly.", body["system"])
	assert.EqualValues(t, 20, body["max_tokens"])
}

func TestChatRequestBuilder_Validation(t *testing.T) {
	_, err := NewChatRequestBuilder().Build()
	requireErrorType(t, err, ErrorTypeConfiguration)

	_, err = NewChatRequestBuilder().Messages("hi", "hello").Build()
	requireErrorType(t, err, ErrorTypeConfiguration)

	_, err = NewChatRequestBuilder().Message("hi").N(0).Build()
	requireErrorType(t, err, ErrorTypeConfiguration)

	req, err := NewChatRequestBuilder().Message("hi").Message("hello").Message("how are you?").Build()
	require.NoError(t, err)
	assert.Len(t, req.Messages(), 3)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"messages":["hi","hello","how are you?"]}`, string(raw))
}

package textsynth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// CompletionRequest is a validated completion request. Build it with
// NewCompletionRequestBuilder.
type CompletionRequest struct {
	prompt string
	params samplingParams
	built  bool
}

// Prompt returns the text to complete.
func (r *CompletionRequest) Prompt() string { return r.prompt }

type completionWire struct {
	Prompt string `json:"prompt"`
	samplingParams
}

func (r *CompletionRequest) wire(stream bool) completionWire {
	params := r.params.clone()
	params.Stream = stream
	return completionWire{Prompt: r.prompt, samplingParams: params}
}

// MarshalJSON encodes the request as sent for a non-streaming call.
func (r *CompletionRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire(false))
}

// CompletionRequestBuilder stages a CompletionRequest. Prompt is required.
type CompletionRequestBuilder struct {
	sampling[*CompletionRequestBuilder]
	prompt *string
}

func NewCompletionRequestBuilder() *CompletionRequestBuilder {
	b := &CompletionRequestBuilder{}
	b.self = b
	return b
}

// Prompt sets the input text. The prompt is not echoed in the output.
func (b *CompletionRequestBuilder) Prompt(prompt string) *CompletionRequestBuilder {
	b.prompt = &prompt
	return b
}

// Build validates the staged fields.
func (b *CompletionRequestBuilder) Build() (*CompletionRequest, error) {
	if b.prompt == nil {
		return nil, core.NewConfigurationError("completions: prompt is required")
	}
	if err := b.params.validate("completions"); err != nil {
		return nil, err
	}
	return &CompletionRequest{prompt: *b.prompt, params: b.params.clone(), built: true}, nil
}

// FinishReason tells why generation stopped.
type FinishReason string

const (
	// FinishReasonNone marks a streamed chunk that is not the last one.
	FinishReasonNone FinishReason = ""
	// FinishReasonStop means the model ended the text or hit a stop string.
	FinishReasonStop FinishReason = "stop"
	// FinishReasonLength means max_tokens was exhausted.
	FinishReasonLength FinishReason = "length"
)

// TextList holds one text per requested completion. The API sends a bare
// string when n is 1 and an array otherwise; both decode here.
type TextList []string

func (t *TextList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*t = list
	return nil
}

// CompletionResponse is the answer of a completion or chat call. Streamed
// calls deliver the same shape once per chunk.
type CompletionResponse struct {
	Text TextList `json:"text"`
	// ReachedEnd is set on the last answer
	ReachedEnd bool `json:"reached_end"`
	// TruncatedPrompt is set when the prompt did not fit the context and was cut
	TruncatedPrompt bool `json:"truncated_prompt,omitempty"`
	InputTokens     int  `json:"input_tokens,omitempty"`
	OutputTokens    int  `json:"output_tokens,omitempty"`
	// FinishReason is filled from the API when present, otherwise derived on the final answer
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// CompletionChunk is one element of a streamed completion.
type CompletionChunk = CompletionResponse

// Joined returns the first completion's text.
func (r CompletionResponse) Joined() string {
	if len(r.Text) == 0 {
		return ""
	}
	return r.Text[0]
}

// settle derives FinishReason for the final answer when the API did not send one.
func (r *CompletionResponse) settle(maxTokens *int, final bool) {
	if r.FinishReason != FinishReasonNone || !final {
		return
	}
	if maxTokens != nil && r.OutputTokens >= *maxTokens {
		r.FinishReason = FinishReasonLength
		return
	}
	r.FinishReason = FinishReasonStop
}

// Completions generates text for the prompt and returns the whole answer.
func (c *Client) Completions(ctx context.Context, engine Engine, req *CompletionRequest) (*CompletionResponse, error) {
	if err := requireCompletionEngine(engine, "completions"); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "completions"); err != nil {
		return nil, err
	}

	var resp CompletionResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "completions",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "completions"),
		Body:      req.wire(false),
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.settle(req.params.MaxTokens, true)
	return &resp, nil
}

// StreamCompletions generates text for the prompt and returns the answer as it
// is produced. The caller must drain or Close the stream.
func (c *Client) StreamCompletions(ctx context.Context, engine Engine, req *CompletionRequest) (*Stream[CompletionChunk], error) {
	if err := requireCompletionEngine(engine, "completions"); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "completions"); err != nil {
		return nil, err
	}

	body, err := c.client.DoStream(ctx, llmclient.Request{
		Operation: "completions",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "completions"),
		Body:      req.wire(true),
	})
	if err != nil {
		return nil, err
	}
	return newCompletionStream(body, req.params.MaxTokens), nil
}

// CollectCompletion drains a completion stream into a single response. Texts
// are concatenated per completion index; token counts come from the last chunk.
func CollectCompletion(s *Stream[CompletionChunk]) (*CompletionResponse, error) {
	defer s.Close()

	var builders []*strings.Builder
	out := &CompletionResponse{}
	for s.Next() {
		chunk := s.Current()
		for len(builders) < len(chunk.Text) {
			builders = append(builders, &strings.Builder{})
		}
		for i, text := range chunk.Text {
			builders[i].WriteString(text)
		}
		out.ReachedEnd = chunk.ReachedEnd
		out.TruncatedPrompt = out.TruncatedPrompt || chunk.TruncatedPrompt
		if chunk.InputTokens != 0 {
			out.InputTokens = chunk.InputTokens
		}
		if chunk.OutputTokens != 0 {
			out.OutputTokens = chunk.OutputTokens
		}
		out.FinishReason = chunk.FinishReason
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	out.Text = make(TextList, len(builders))
	for i := range builders {
		out.Text[i] = builders[i].String()
	}
	return out, nil
}

package textsynth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// LogprobRequest asks for the log probability of a continuation given a
// context. Only LogprobRequestBuilder produces usable values.
type LogprobRequest struct {
	context      string
	continuation string
	built        bool
}

func (r *LogprobRequest) Context() string      { return r.context }
func (r *LogprobRequest) Continuation() string { return r.continuation }

type logprobWire struct {
	Context      string `json:"context"`
	Continuation string `json:"continuation"`
}

func (r *LogprobRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(logprobWire{Context: r.context, Continuation: r.continuation})
}

type LogprobRequestBuilder struct {
	context      *string
	continuation *string
}

func NewLogprobRequestBuilder() *LogprobRequestBuilder {
	return &LogprobRequestBuilder{}
}

// Context sets the conditioning text. It may be empty.
func (b *LogprobRequestBuilder) Context(text string) *LogprobRequestBuilder {
	b.context = &text
	return b
}

// Continuation sets the text to score. It must not be empty.
func (b *LogprobRequestBuilder) Continuation(text string) *LogprobRequestBuilder {
	b.continuation = &text
	return b
}

func (b *LogprobRequestBuilder) Build() (*LogprobRequest, error) {
	if b.context == nil {
		return nil, core.NewConfigurationError("logprob: context is required")
	}
	if b.continuation == nil {
		return nil, core.NewConfigurationError("logprob: continuation is required")
	}
	if *b.continuation == "" {
		return nil, core.NewConfigurationError("logprob: continuation must not be empty")
	}
	return &LogprobRequest{context: *b.context, continuation: *b.continuation, built: true}, nil
}

type LogprobResponse struct {
	// Logprob is the natural log of the continuation's probability
	Logprob float64 `json:"logprob"`
	// IsGreedy is true when greedy sampling would have produced the continuation
	IsGreedy    bool `json:"is_greedy"`
	NumTokens   int  `json:"num_tokens"`
	InputTokens int  `json:"input_tokens"`
}

// Logprob scores a continuation.
func (c *Client) Logprob(ctx context.Context, engine Engine, req *LogprobRequest) (*LogprobResponse, error) {
	if err := requireCompletionEngine(engine, "logprob"); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "logprob"); err != nil {
		return nil, err
	}

	var resp LogprobResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "logprob",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "logprob"),
		Body:      req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

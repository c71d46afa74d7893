package textsynth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

type TokenizeRequest struct {
	text  string
	built bool
}

func (r *TokenizeRequest) Text() string { return r.text }

func (r *TokenizeRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text string `json:"text"`
	}{r.text})
}

type TokenizeRequestBuilder struct {
	text *string
}

func NewTokenizeRequestBuilder() *TokenizeRequestBuilder {
	return &TokenizeRequestBuilder{}
}

func (b *TokenizeRequestBuilder) Text(text string) *TokenizeRequestBuilder {
	b.text = &text
	return b
}

func (b *TokenizeRequestBuilder) Build() (*TokenizeRequest, error) {
	if b.text == nil {
		return nil, core.NewConfigurationError("tokenize: text is required")
	}
	return &TokenizeRequest{text: *b.text, built: true}, nil
}

// TokenizeResponse lists the engine's token indexes for the text, in order.
type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

// Tokenize splits text into the engine's tokens. Any engine is accepted.
func (c *Client) Tokenize(ctx context.Context, engine Engine, req *TokenizeRequest) (*TokenizeResponse, error) {
	if engine == nil || engine.String() == "" {
		return nil, core.NewConfigurationError("tokenize: engine is required")
	}
	if err := requireBuilt(req == nil || !req.built, "tokenize"); err != nil {
		return nil, err
	}

	var resp TokenizeResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "tokenize",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "tokenize"),
		Body:      req,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

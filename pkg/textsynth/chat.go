package textsynth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// ChatRequest is a validated chat request. Messages alternate between user
// and assistant, starting and ending with the user.
type ChatRequest struct {
	messages []string
	system   *string
	params   samplingParams
	built    bool
}

// Messages returns a copy of the conversation turns.
func (r *ChatRequest) Messages() []string {
	return append([]string(nil), r.messages...)
}

type chatWire struct {
	Messages []string `json:"messages"`
	System   *string  `json:"system,omitempty"`
	samplingParams
}

func (r *ChatRequest) wire(stream bool) chatWire {
	params := r.params.clone()
	params.Stream = stream
	return chatWire{Messages: r.messages, System: r.system, samplingParams: params}
}

func (r *ChatRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire(false))
}

// ChatRequestBuilder stages a ChatRequest. Messages are required.
type ChatRequestBuilder struct {
	sampling[*ChatRequestBuilder]
	messages []string
	system   *string
}

func NewChatRequestBuilder() *ChatRequestBuilder {
	b := &ChatRequestBuilder{}
	b.self = b
	return b
}

// Messages replaces the conversation turns.
func (b *ChatRequestBuilder) Messages(messages ...string) *ChatRequestBuilder {
	b.messages = append([]string(nil), messages...)
	return b
}

// Message appends one turn.
func (b *ChatRequestBuilder) Message(message string) *ChatRequestBuilder {
	b.messages = append(b.messages, message)
	return b
}

// System overrides the engine's default system prompt.
func (b *ChatRequestBuilder) System(prompt string) *ChatRequestBuilder {
	b.system = &prompt
	return b
}

func (b *ChatRequestBuilder) Build() (*ChatRequest, error) {
	if len(b.messages) == 0 {
		return nil, core.NewConfigurationError("chat: messages are required")
	}
	if len(b.messages)%2 == 0 {
		return nil, core.NewConfigurationErrorf("chat: messages must end with a user turn, got %d messages", len(b.messages))
	}
	if err := b.params.validate("chat"); err != nil {
		return nil, err
	}
	req := &ChatRequest{
		messages: append([]string(nil), b.messages...),
		params:   b.params.clone(),
		built:    true,
	}
	if b.system != nil {
		system := *b.system
		req.system = &system
	}
	return req, nil
}

// Chat returns the assistant's next turn.
func (c *Client) Chat(ctx context.Context, engine Engine, req *ChatRequest) (*CompletionResponse, error) {
	if err := requireCompletionEngine(engine, "chat"); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "chat"); err != nil {
		return nil, err
	}

	var resp CompletionResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "chat",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "chat"),
		Body:      req.wire(false),
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.settle(req.params.MaxTokens, true)
	return &resp, nil
}

// StreamChat returns the assistant's next turn as it is produced.
func (c *Client) StreamChat(ctx context.Context, engine Engine, req *ChatRequest) (*Stream[CompletionChunk], error) {
	if err := requireCompletionEngine(engine, "chat"); err != nil {
		return nil, err
	}
	if err := requireBuilt(req == nil || !req.built, "chat"); err != nil {
		return nil, err
	}

	body, err := c.client.DoStream(ctx, llmclient.Request{
		Operation: "chat",
		Method:    http.MethodPost,
		Endpoint:  engineEndpoint(engine, "chat"),
		Body:      req.wire(true),
	})
	if err != nil {
		return nil, err
	}
	return newCompletionStream(body, req.params.MaxTokens), nil
}

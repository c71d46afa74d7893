package textsynth

import (
	"context"
	"net/http"

	"github.com/elikoga/textsynth/internal/llmclient"
)

// CreditsResponse holds the remaining account balance in 1e-9 USD units.
type CreditsResponse struct {
	Credits int64 `json:"credits"`
}

// Credits returns the account balance.
func (c *Client) Credits(ctx context.Context) (*CreditsResponse, error) {
	var resp CreditsResponse
	err := c.client.Do(ctx, llmclient.Request{
		Operation: "credits",
		Method:    http.MethodGet,
		Endpoint:  "/credits",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

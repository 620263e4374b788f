package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []models.Turn `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message models.Turn `json:"message"`
	} `json:"choices"`
}

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewChatClient(url, apiKey string, timeout time.Duration) *ChatClient {
	return &ChatClient{url: url, apiKey: apiKey, http: newHTTPClient(timeout)}
}

// Complete sends one request and returns the first choice. Failures are not
// retried.
func (c *ChatClient) Complete(ctx context.Context, model string, messages []models.Turn) (string, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperr.Upstream("Chat API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("Chat", resp)
	}
	var out chatResponse
	if err := decode("Chat", resp.Body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", apperr.Upstream("Chat API returned no choices", nil)
	}
	return out.Choices[0].Message.Content, nil
}

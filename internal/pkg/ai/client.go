package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/uproot-labs/uproot/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.openai.com/v1"

var ErrNotConfigured = errors.New("ai: OPENAI_API_KEY is not configured")

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	APIKey     string
	Model      string
	APIBaseURL string

	HTTPClient *http.Client
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewClientFromEnv() *Client {
	return &Client{
		APIKey:     strings.TrimSpace(env.GetEnv("OPENAI_API_KEY", "")),
		Model:      strings.TrimSpace(env.GetEnv("OPENAI_MODEL", "gpt-4o-mini")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("OPENAI_API_BASE_URL", defaultAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *Client) IsConfigured() bool {
	return c.APIKey != ""
}

// Complete sends a chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if len(messages) == 0 {
		return "", errors.New("ai: at least one message is required")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"model":    c.Model,
		"messages": messages,
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.APIBaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ai: chat completion failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("ai: chat completion returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

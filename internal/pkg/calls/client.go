package calls

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

const defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// ErrPhoneNumberNotFound means the configured outbound number is not
// registered with the provider.
var ErrPhoneNumberNotFound = errors.New("calls: outbound phone number not found at provider")

// Client talks to the ElevenLabs batch-calling API.
type Client struct {
	APIKey      string
	AgentID     string
	PhoneNumber string
	BaseURL     string

	HTTPClient *http.Client
}

// NewClientFromEnv builds the client from ELEVENLABS_* environment variables.
func NewClientFromEnv() *Client {
	return &Client{
		APIKey:      strings.TrimSpace(env.GetEnv("ELEVENLABS_API_KEY", "")),
		AgentID:     strings.TrimSpace(env.GetEnv("ELEVENLABS_AGENT_ID", "")),
		PhoneNumber: strings.TrimSpace(env.GetEnv("ELEVENLABS_PHONE_NUMBER", "")),
		BaseURL:     strings.TrimRight(env.GetEnv("ELEVENLABS_BASE_URL", defaultElevenLabsBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.APIKey != ""
}

// ListPhoneNumbers fetches the outbound numbers registered with the provider.
func (c *Client) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	var numbers []PhoneNumber
	if err := c.getJSON(ctx, "/phone-numbers", &numbers); err != nil {
		return nil, err
	}
	return numbers, nil
}

// ResolvePhoneNumberID matches the configured outbound number against the
// provider's registered numbers.
func (c *Client) ResolvePhoneNumberID(ctx context.Context) (string, error) {
	numbers, err := c.ListPhoneNumbers(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range numbers {
		if n.PhoneNumber == c.PhoneNumber {
			return n.PhoneNumberID, nil
		}
	}
	return "", ErrPhoneNumberNotFound
}

// SubmitBatchCall schedules one outbound call as a single-recipient batch
// job and returns the provider's batch id.
func (c *Client) SubmitBatchCall(ctx context.Context, callName, phoneNumber string, scheduledTimeUnix int64) (string, error) {
	phoneNumberID, err := c.ResolvePhoneNumberID(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]interface{}{
		"call_name":             callName,
		"agent_id":              c.AgentID,
		"agent_phone_number_id": phoneNumberID,
		"scheduled_time_unix":   scheduledTimeUnix,
		"recipients": []map[string]interface{}{
			{
				"phone_number": phoneNumber,
				"conversation_initiation_client_data": map[string]interface{}{
					"dynamic_variables": map[string]interface{}{},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/batch-calling/submit", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	var result struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(req, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errors.New("calls: provider returned no batch id")
	}
	return result.ID, nil
}

// GetBatch fetches the current state of a batch job.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	var batch Batch
	if err := c.getJSON(ctx, "/batch-calling/"+batchID, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetConversation fetches a conversation record including its transcript.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	if err := c.getJSON(ctx, "/conversations/"+conversationID, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.doJSON(req, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	if !c.IsConfigured() {
		return errors.New("ELEVENLABS_API_KEY is not configured")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calls provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("calls provider response read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("calls provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}

package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client talks to the voice AI conversation API.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	httpClient *http.Client
}

// SignedURLResponse is the payload returned by the signed URL endpoint.
type SignedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// NewClient creates a voice API client.
func NewClient(baseURL, apiKey, agentID string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		agentID:    agentID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetSignedURL mints a short-lived WebSocket URL for the configured agent.
// The raw response body is returned alongside the parsed value so handlers
// can relay it verbatim.
func (c *Client) GetSignedURL(ctx context.Context) (*SignedURLResponse, []byte, error) {
	endpoint := fmt.Sprintf("%s/v1/convai/conversation/get_signed_url?agent_id=%s",
		c.baseURL, url.QueryEscape(c.agentID))

	var body []byte
	operation := func() error {
		var err error
		body, err = c.get(ctx, endpoint)
		return err
	}
	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return nil, nil, fmt.Errorf("failed to get signed url: %w", err)
	}

	var parsed SignedURLResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("failed to parse signed url response: %w", err)
	}
	if parsed.SignedURL == "" {
		return nil, nil, fmt.Errorf("signed url response missing signed_url field")
	}

	return &parsed, body, nil
}

// GetConversation fetches the raw conversation payload, transcript included,
// for a finished conversation.
func (c *Client) GetConversation(ctx context.Context, conversationID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/convai/conversations/%s", c.baseURL, url.PathEscape(conversationID))

	var body []byte
	operation := func() error {
		var err error
		body, err = c.get(ctx, endpoint)
		return err
	}
	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return nil, fmt.Errorf("failed to fetch conversation %s: %w", conversationID, err)
	}

	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("api returned status %d: %s", resp.StatusCode, string(body))
		// Client errors will not heal on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return body, nil
}

func (c *Client) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 15 * time.Second
	return backoff.WithContext(policy, ctx)
}

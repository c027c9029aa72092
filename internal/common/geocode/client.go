package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	commonhttp "claims-intake/internal/common/http"
)

// Client resolves coordinates to human-readable addresses through a
// Nominatim-compatible reverse geocoding service.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *commonhttp.Client
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

// NewClient creates a reverse geocoding client.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: commonhttp.NewClient(timeout),
	}
}

// Reverse returns the display address for the given coordinates.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%f&lon=%f", c.baseURL, lat, lon)

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("geocode api returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed reverseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse geocode response: %w", err)
	}
	if parsed.DisplayName == "" {
		return "", fmt.Errorf("geocode response missing display_name")
	}

	return parsed.DisplayName, nil
}

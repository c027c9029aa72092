package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the object storage HTTP API for evidence photos.
type Client struct {
	baseURL     string
	bucket      string
	serviceKey  string
	cacheMaxAge string
	httpClient  *http.Client
}

// NewClient creates a storage client for the given bucket.
func NewClient(baseURL, bucket, serviceKey, cacheMaxAge string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		bucket:      bucket,
		serviceKey:  serviceKey,
		cacheMaxAge: cacheMaxAge,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Upload stores the object under key and returns its public URL. Existing
// objects are never overwritten; the timestamped key makes collisions
// practically impossible anyway.
func (c *Client) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age="+c.cacheMaxAge)
	req.Header.Set("x-upsert", "false")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("storage upload returned status %d: %s", resp.StatusCode, string(body))
	}

	return c.PublicURL(key), nil
}

// PublicURL returns the publicly reachable URL for a stored object.
func (c *Client) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, c.bucket, key)
}

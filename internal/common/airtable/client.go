package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.airtable.com"

// Client talks to the spreadsheet store REST API.
type Client struct {
	baseURL    string
	apiKey     string
	baseID     string
	tableName  string
	httpClient *http.Client
}

// Record is a single spreadsheet row.
type Record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type listResponse struct {
	Records []Record `json:"records"`
}

type createRequest struct {
	Records []recordFields `json:"records"`
}

type recordFields struct {
	Fields map[string]interface{} `json:"fields"`
}

// NewClient creates a spreadsheet store client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL, apiKey, baseID, tableName string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		baseID:     baseID,
		tableName:  tableName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateRecord inserts a new row with the given fields.
func (c *Client) CreateRecord(ctx context.Context, fields map[string]interface{}) (*Record, error) {
	payload, err := json.Marshal(createRequest{Records: []recordFields{{Fields: fields}}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.tableURL(), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	if len(resp.Records) == 0 {
		return nil, fmt.Errorf("create response contained no records")
	}

	return &resp.Records[0], nil
}

// ListRecords returns the rows matching a filterByFormula expression.
func (c *Client) ListRecords(ctx context.Context, filterByFormula string) ([]Record, error) {
	endpoint := c.tableURL()
	if filterByFormula != "" {
		endpoint += "?filterByFormula=" + url.QueryEscape(filterByFormula)
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse list response: %w", err)
	}

	return resp.Records, nil
}

// UpdateRecord patches the fields of an existing row.
func (c *Client) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) error {
	payload, err := json.Marshal(recordFields{Fields: fields})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	endpoint := c.tableURL() + "/" + url.PathEscape(recordID)
	if _, err := c.do(ctx, http.MethodPatch, endpoint, payload); err != nil {
		return fmt.Errorf("failed to update record %s: %w", recordID, err)
	}

	return nil
}

func (c *Client) tableURL() string {
	return fmt.Sprintf("%s/v0/%s/%s", c.baseURL, c.baseID, url.PathEscape(c.tableName))
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

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
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

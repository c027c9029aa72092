package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"claims-intake/internal/models"
)

// Contract violations the caller may want to distinguish from transport
// failures.
var (
	ErrEmptyResponse = errors.New("workflow webhook returned an empty response")
	ErrInvalidStatus = errors.New("workflow webhook returned an unknown status")
)

// Client submits evidence to the verification workflow webhook and parses
// its decision.
type Client struct {
	webhookURL string
	timeout    time.Duration
	httpClient *http.Client
}

type decisionRequest struct {
	ImageURL  string `json:"imageUrl"`
	UserName  string `json:"userName"`
	ClaimID   string `json:"claimId,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Location  string `json:"location,omitempty"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	Timestamp string `json:"timestamp"`
}

// NewClient creates a workflow webhook client. The timeout bounds the whole
// decision round trip, which routinely takes minutes of webhook-side work.
func NewClient(webhookURL string, timeout time.Duration) *Client {
	return &Client{
		webhookURL: webhookURL,
		timeout:    timeout,
		// The per-request deadline comes from the context so a canceled
		// intake aborts the round trip early.
		httpClient: &http.Client{},
	}
}

// Decide posts the uploaded evidence to the webhook and returns its verdict.
// A deadline overrun surfaces as context.DeadlineExceeded wrapped in the
// returned error.
func (c *Client) Decide(ctx context.Context, info models.UserInfo, upload models.UploadMetadata) (*models.WorkflowDecision, error) {
	payload, err := json.Marshal(decisionRequest{
		ImageURL:  upload.ImageURL,
		UserName:  info.Name,
		ClaimID:   info.ClaimID,
		Phone:     info.Phone,
		Location:  info.Location,
		FileName:  upload.FileName,
		FileSize:  upload.SizeBytes,
		FileType:  upload.ContentType,
		Timestamp: upload.UploadedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("decision request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to read decision response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("workflow webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyResponse
	}

	var decision models.WorkflowDecision
	if err := json.Unmarshal(body, &decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision response: %w", err)
	}
	if !models.IsValidDecisionStatus(decision.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, decision.Status)
	}

	return &decision, nil
}

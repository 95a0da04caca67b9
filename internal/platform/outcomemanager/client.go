// Package outcomemanager is the client for the OutcomeManager settlement
// contract gateway. It delivers signed attestations and returns the network
// transaction reference.
package outcomemanager

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/backitlabs/backit-oracle/internal/oracle"
)

// Client submits outcomes to the settlement contract over the gateway's JSON
// API. With no endpoint configured it runs in dry-run mode: submissions
// succeed locally and return a synthetic "dryrun-" reference, which keeps the
// rest of the pipeline honest about the distinction between a signature and a
// transaction identity.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a Client for the given gateway endpoint. An empty endpoint
// enables dry-run mode.
func New(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DryRun reports whether the client is operating without a real gateway.
func (c *Client) DryRun() bool {
	return c.endpoint == ""
}

// submitPayload is the gateway's expected request body.
type submitPayload struct {
	CallID          int64  `json:"call_id"`
	Outcome         string `json:"outcome"`
	Price           string `json:"price"`
	TimestampMillis uint64 `json:"timestamp_ms"`
	Signature       string `json:"signature"`
	PublicKey       string `json:"public_key"`
}

// submitResponse is the gateway's reply on success.
type submitResponse struct {
	TxHash string `json:"tx_hash"`
}

// SubmitOutcome delivers the attestation and returns the transaction
// reference. Failures are returned as errors so the caller's retry policy
// applies.
func (c *Client) SubmitOutcome(ctx context.Context, req oracle.SubmissionRequest) (string, error) {
	if c.DryRun() {
		return "dryrun-" + uuid.New().String(), nil
	}

	payload := submitPayload{
		CallID:          req.CallID,
		Outcome:         string(req.Value),
		Price:           fmt.Sprintf("%.7f", req.Price),
		TimestampMillis: req.TimestampMillis,
		Signature:       hex.EncodeToString(req.Signature),
		PublicKey:       req.PublicKeyHex,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("outcomemanager: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/outcomes", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("outcomemanager: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("outcomemanager: submit call %d: %w", req.CallID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("outcomemanager: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("outcomemanager: submit call %d: unexpected status %d: %s",
			req.CallID, resp.StatusCode, string(respBody))
	}

	var parsed submitResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("outcomemanager: decode response: %w", err)
	}
	if parsed.TxHash == "" {
		return "", fmt.Errorf("outcomemanager: gateway returned no tx hash for call %d", req.CallID)
	}

	return parsed.TxHash, nil
}

// Compile-time interface check.
var _ oracle.ContractClient = (*Client)(nil)

// Package analysis is the client for the backend analysis/generation
// service. The service is a black-box job API: submit a job, poll its
// status, receive a result or an error.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"grantflow/api/internal/poll"
	"grantflow/api/internal/workflow"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type startRequest struct {
	ProposalID string `json:"proposalId"`
	Kind       string `json:"kind"`
	Force      bool   `json:"force"`
}

// Start submits an analysis job. The backend answers completed for cheap
// synchronous kinds, already_running for idempotent re-submissions, and
// processing otherwise.
func (c *Client) Start(ctx context.Context, proposalID string, kind workflow.Kind, force bool) (poll.Result, error) {
	payload, err := json.Marshal(startRequest{ProposalID: proposalID, Kind: string(kind), Force: force})
	if err != nil {
		return poll.Result{}, fmt.Errorf("marshal start request: %w", err)
	}

	url := fmt.Sprintf("%s/api/analyses", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return poll.Result{}, fmt.Errorf("build start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// Status queries the current state of a job.
func (c *Client) Status(ctx context.Context, proposalID string, kind workflow.Kind) (poll.Result, error) {
	url := fmt.Sprintf("%s/api/analyses/%s/%s", c.baseURL, proposalID, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return poll.Result{}, fmt.Errorf("build status request: %w", err)
	}
	return c.do(req)
}

// Fetch adapts Status to the poller's FetchFunc.
func (c *Client) Fetch(proposalID string, kind workflow.Kind) poll.FetchFunc {
	return func(ctx context.Context) (poll.Result, error) {
		return c.Status(ctx, proposalID, kind)
	}
}

func (c *Client) do(req *http.Request) (poll.Result, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return poll.Result{}, fmt.Errorf("analysis service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return poll.Result{}, fmt.Errorf("analysis service: status %d", resp.StatusCode)
	}

	var result poll.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return poll.Result{}, fmt.Errorf("decode analysis response: %w", err)
	}
	return result, nil
}

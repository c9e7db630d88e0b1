// Package client is an HTTP client for the variantcore API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"variantcore/internal/assignment"
	"variantcore/internal/evalctx"
	"variantcore/internal/experiment"
	"variantcore/internal/feature"
)

// Client talks to a variantcore server.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ListFlags retrieves all flags.
func (c *Client) ListFlags(ctx context.Context) ([]feature.Flag, error) {
	var result struct {
		Flags []feature.Flag `json:"flags"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/flags", nil, &result); err != nil {
		return nil, err
	}
	return result.Flags, nil
}

// GetFlag retrieves a single flag by key.
func (c *Client) GetFlag(ctx context.Context, key string) (*feature.Flag, error) {
	var flag feature.Flag
	if err := c.do(ctx, http.MethodGet, "/v1/flags/"+url.PathEscape(key), nil, &flag); err != nil {
		return nil, err
	}
	return &flag, nil
}

// EvaluateFlag evaluates one flag against the given context.
func (c *Client) EvaluateFlag(ctx context.Context, key string, ec *evalctx.Context) (*feature.Evaluation, error) {
	var eval feature.Evaluation
	path := "/v1/flags/" + url.PathEscape(key) + "/evaluate"
	if err := c.do(ctx, http.MethodPost, path, ec, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

// CreateFlag creates a flag.
func (c *Client) CreateFlag(ctx context.Context, flag feature.Flag) error {
	return c.do(ctx, http.MethodPost, "/v1/flags", flag, nil)
}

// DeleteFlag deletes a flag by key.
func (c *Client) DeleteFlag(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/v1/flags/"+url.PathEscape(key), nil, nil)
}

// ListExperiments retrieves all experiments.
func (c *Client) ListExperiments(ctx context.Context) ([]experiment.Experiment, error) {
	var result struct {
		Experiments []experiment.Experiment `json:"experiments"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/experiments", nil, &result); err != nil {
		return nil, err
	}
	return result.Experiments, nil
}

// Assign runs the assignment pipeline for one experiment.
func (c *Client) Assign(ctx context.Context, experimentID string, ec *evalctx.Context) (*experiment.Result, error) {
	var result experiment.Result
	path := "/v1/experiments/" + url.PathEscape(experimentID) + "/assign"
	if err := c.do(ctx, http.MethodPost, path, ec, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAssignments retrieves all assignments for a user.
func (c *Client) ListAssignments(ctx context.Context, userID string) ([]assignment.Assignment, error) {
	var result struct {
		Assignments []assignment.Assignment `json:"assignments"`
	}
	path := "/v1/assignments?userId=" + url.QueryEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Assignments, nil
}

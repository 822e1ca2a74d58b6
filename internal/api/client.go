// Package api wraps the Infinity synthetic-data REST API with one method per
// endpoint. Higher-level batch tracking lives in the batch package; this
// package only shapes requests, attaches authentication, and surfaces
// non-success responses as RemoteError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/toinfinity/infinity-go/internal/config"
	"github.com/toinfinity/infinity-go/internal/model"
)

// RemoteError is a non-2xx response from the API, kept verbatim so callers
// can decide whether to retry.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("infinity API error (status %d): %s", e.Status, e.Body)
}

// Client is an authenticated HTTP client for the Infinity API. Safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	log        zerolog.Logger
}

// NewClient creates an API client from configuration.
func NewClient(cfg *config.APIConfig, log zerolog.Logger) *Client {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		log:     log,
	}
}

type jobRunSpec struct {
	Name        string          `json:"name"`
	IsPreview   bool            `json:"is_preview"`
	ParamValues model.JobParams `json:"param_values"`
}

type submitBatchRequest struct {
	Name    string       `json:"name"`
	JobRuns []jobRunSpec `json:"job_runs"`
}

// JobRunRecord is the remote record of one job inside a batch.
type JobRunRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	IsPreview   bool            `json:"is_preview"`
	ParamValues model.JobParams `json:"param_values"`
	State       string          `json:"state"`
	ResultURL   string          `json:"result_url,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// BatchRecord is the remote record of a submitted batch. Job runs are in
// submission order.
type BatchRecord struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Created time.Time      `json:"created"`
	JobRuns []JobRunRecord `json:"job_runs"`
}

// JobStatusRecord is one job's entry in a batch summary.
type JobStatusRecord struct {
	ID         string `json:"id"`
	InProgress bool   `json:"in_progress"`
	State      string `json:"state"`
	ResultURL  string `json:"result_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type batchSummaryRecord struct {
	ID      string            `json:"id"`
	JobRuns []JobStatusRecord `json:"job_runs"`
}

// SubmitBatch posts a batch of job parameter sets to the API and returns the
// remote record carrying the assigned batch and job identifiers.
func (c *Client) SubmitBatch(ctx context.Context, generator, name string, kind model.JobKind, params []model.JobParams) (*BatchRecord, error) {
	req := submitBatchRequest{Name: name}
	for _, p := range params {
		req.JobRuns = append(req.JobRuns, jobRunSpec{
			Name:        generator,
			IsPreview:   kind == model.JobKindPreview,
			ParamValues: p,
		})
	}
	var record BatchRecord
	if err := c.post(ctx, "/api/batch/", req, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetBatch retrieves the full remote record of a previously submitted batch.
func (c *Client) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	var record BatchRecord
	if err := c.get(ctx, fmt.Sprintf("/api/batch/%s/", batchID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetJobStatuses fetches current status for the requested jobs of a batch in
// a single round trip, using the batch summary endpoint. Jobs outside
// jobIDs are dropped from the result.
func (c *Client) GetJobStatuses(ctx context.Context, batchID string, jobIDs []string) ([]JobStatusRecord, error) {
	var summary batchSummaryRecord
	if err := c.get(ctx, fmt.Sprintf("/api/batch/summary/%s/", batchID), &summary); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(jobIDs))
	for _, id := range jobIDs {
		wanted[id] = true
	}
	statuses := make([]JobStatusRecord, 0, len(jobIDs))
	for _, jr := range summary.JobRuns {
		if wanted[jr.ID] {
			statuses = append(statuses, jr)
		}
	}
	return statuses, nil
}

// ListBatches returns summaries of batches submitted within [start, end].
func (c *Client) ListBatches(ctx context.Context, start, end time.Time) ([]model.BatchListEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end time (%s) before start time (%s) for batch list query", end, start)
	}
	q := url.Values{}
	q.Set("start_time", start.Format(time.RFC3339Nano))
	q.Set("end_time", end.Format(time.RFC3339Nano))
	var entries []model.BatchListEntry
	if err := c.get(ctx, "/api/batch/?"+q.Encode(), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetGenerator retrieves the parameter schema for a single generator.
func (c *Client) GetGenerator(ctx context.Context, name string) (*model.GeneratorInfo, error) {
	var info model.GeneratorInfo
	if err := c.get(ctx, fmt.Sprintf("/api/jobs/%s/", name), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetGenerators retrieves schemas for all generators available to the token.
func (c *Client) GetGenerators(ctx context.Context) ([]model.GeneratorInfo, error) {
	var infos []model.GeneratorInfo
	if err := c.get(ctx, "/api/jobs/", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetUsageRange returns per-generator job counts over [start, end].
func (c *Client) GetUsageRange(ctx context.Context, start, end time.Time) (*model.UsageStats, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("end time (%s) before start time (%s) for usage query", end, start)
	}
	q := url.Values{}
	q.Set("start_time", start.Format(time.RFC3339Nano))
	q.Set("end_time", end.Format(time.RFC3339Nano))
	var stats model.UsageStats
	if err := c.get(ctx, "/api/job_runs/counts/?"+q.Encode(), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetUsageLastNDays returns usage stats for the trailing n days.
func (c *Client) GetUsageLastNDays(ctx context.Context, days int) (*model.UsageStats, error) {
	end := time.Now()
	return c.GetUsageRange(ctx, end.AddDate(0, 0, -days), end)
}

// FetchArtifact downloads the raw artifact bytes at a job's result
// reference. Result URLs are pre-signed, so no auth header is attached.
func (c *Client) FetchArtifact(ctx context.Context, resultURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifact: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// post sends a POST request with JSON body.
func (c *Client) post(ctx context.Context, endpoint string, body any, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, result)
}

// get sends a GET request and parses the JSON response.
func (c *Client) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response.
func (c *Client) doRequest(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	c.log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("infinity API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().Int("status", resp.StatusCode).Str("url", req.URL.String()).Msg("infinity API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"runpod-probe/internal/domain"
	"runpod-probe/internal/domain/model"

	"github.com/rs/zerolog"
)

const (
	submitTimeout = 30 * time.Second
	statusTimeout = 10 * time.Second
)

// Client talks to a RunPod-style serverless endpoint over HTTP.
// Submission and status checks use separate clients because the endpoint
// can be slow to accept a job (cold start) while status checks must stay
// snappy.
type Client struct {
	baseURL string
	apiKey  string
	submit  *http.Client
	status  *http.Client
	log     *zerolog.Logger
}

// NewClient creates a client for the endpoint at baseURL (everything up
// to, but not including, /run and /status).
func NewClient(baseURL, apiKey string, log *zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		submit:  &http.Client{Timeout: submitTimeout},
		status:  &http.Client{Timeout: statusTimeout},
		log:     log,
	}
}

// Submit posts a job and returns the id the endpoint assigned to it.
// A response without an id yields domain.ErrNoJobID.
func (c *Client) Submit(ctx context.Context, in model.JobInput) (string, error) {
	body, err := json.Marshal(model.SubmitRequest{Input: in})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.submit.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read submit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit job: unexpected status %d: %s", resp.StatusCode, string(b))
	}

	var sr model.SubmitResponse
	if err := json.Unmarshal(b, &sr); err != nil {
		return "", fmt.Errorf("unmarshal submit response: %w, body: %s", err, string(b))
	}
	if sr.ID == "" {
		c.log.Warn().Str("body", string(b)).Msg("submit response carried no job id")
		return "", domain.ErrNoJobID
	}
	return sr.ID, nil
}

// Status fetches the current state of a previously submitted job.
func (c *Client) Status(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.status.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check status: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("check status: unexpected status %d: %s", resp.StatusCode, string(b))
	}

	var st model.StatusResponse
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("unmarshal status response: %w, body: %s", err, string(b))
	}
	return &st, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

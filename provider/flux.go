package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FluxClient is the adapter for the Flux image generation API
type FluxClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFluxClient creates a new Flux adapter
func NewFluxClient(baseURL, apiKey string) *FluxClient {
	return &FluxClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *FluxClient) Name() string {
	return "flux"
}

type fluxSubmitRequest struct {
	Prompt string         `json:"prompt"`
	Params map[string]any `json:"params,omitempty"`
}

type fluxSubmitResponse struct {
	ID string `json:"id"`
}

type fluxStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
	Error string `json:"error"`
}

// Submit sends a generation request to Flux and returns its task id
func (c *FluxClient) Submit(ctx context.Context, req *Request) (string, error) {
	body, err := json.Marshal(fluxSubmitRequest{
		Prompt: req.Prompt,
		Params: req.Params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal flux request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generation", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build flux request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("flux submit: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("flux submit: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("flux submit rejected: status %d", resp.StatusCode)
	}

	var submitResp fluxSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("failed to decode flux response: %w", err)
	}
	if submitResp.ID == "" {
		return "", fmt.Errorf("flux submit returned empty task id")
	}

	return submitResp.ID, nil
}

// GetStatus queries Flux for a task and maps its status vocabulary onto the
// normalized TaskStatus
func (c *FluxClient) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/get_result?id="+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build flux status request: %w", err)
	}
	httpReq.Header.Set("X-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("flux status: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("flux status: %w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var statusResp fluxStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to decode flux status: %w", err)
	}

	status := &TaskStatus{}
	switch statusResp.Status {
	case "Pending":
		status.State = StatePending
	case "Running":
		status.State = StateProcessing
	case "Ready":
		status.State = StateCompleted
		status.ResultURI = statusResp.Result.Sample
	case "Error", "Content Moderated", "Request Moderated":
		status.State = StateFailed
		status.ErrorMessage = statusResp.Error
		if status.ErrorMessage == "" {
			status.ErrorMessage = statusResp.Status
		}
	default:
		return nil, fmt.Errorf("flux returned unknown status %q", statusResp.Status)
	}

	return status, nil
}

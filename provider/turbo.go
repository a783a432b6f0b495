package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TurboClient is the adapter for the Turbo image generation API, used as the
// fallback when the primary image provider rejects a submission
type TurboClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTurboClient creates a new Turbo adapter
func NewTurboClient(baseURL, apiKey string) *TurboClient {
	return &TurboClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *TurboClient) Name() string {
	return "turbo"
}

type turboEnvelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"task_id"`
		State  string `json:"state"`
		Output string `json:"output"`
		Reason string `json:"reason"`
	} `json:"data"`
}

// Submit sends a generation request to Turbo and returns its task id
func (c *TurboClient) Submit(ctx context.Context, req *Request) (string, error) {
	payload := map[string]any{"prompt": req.Prompt}
	for k, v := range req.Params {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal turbo request: %w", err)
	}

	env, err := c.call(ctx, http.MethodPost, "/api/v2/task", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	if env.Code != 0 {
		return "", fmt.Errorf("turbo submit rejected: code %d: %s", env.Code, env.Msg)
	}
	if env.Data.TaskID == "" {
		return "", fmt.Errorf("turbo submit returned empty task id")
	}

	return env.Data.TaskID, nil
}

// GetStatus queries Turbo for a task and maps its state vocabulary onto the
// normalized TaskStatus
func (c *TurboClient) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	env, err := c.call(ctx, http.MethodGet, "/api/v2/task/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	if env.Code != 0 {
		return nil, fmt.Errorf("turbo status failed: code %d: %s", env.Code, env.Msg)
	}

	status := &TaskStatus{}
	switch env.Data.State {
	case "waiting":
		status.State = StatePending
	case "generating":
		status.State = StateProcessing
	case "success":
		status.State = StateCompleted
		status.ResultURI = env.Data.Output
	case "fail":
		status.State = StateFailed
		status.ErrorMessage = env.Data.Reason
	default:
		return nil, fmt.Errorf("turbo returned unknown state %q", env.Data.State)
	}

	return status, nil
}

func (c *TurboClient) call(ctx context.Context, method, path string, body *bytes.Reader) (*turboEnvelope, error) {
	var httpReq *http.Request
	var err error
	if body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build turbo request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("turbo: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("turbo: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("turbo request failed: status %d", resp.StatusCode)
	}

	var env turboEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode turbo response: %w", err)
	}

	return &env, nil
}

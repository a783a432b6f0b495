package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// KlingClient is the adapter for the Kling video generation API
type KlingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewKlingClient creates a new Kling adapter
func NewKlingClient(baseURL, apiKey string) *KlingClient {
	return &KlingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Video submissions upload reference frames and can be slow.
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (c *KlingClient) Name() string {
	return "kling"
}

type klingResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		TaskMsg    string `json:"task_status_msg"`
		TaskResult struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
}

// Submit sends a video generation request to Kling and returns its task id
func (c *KlingClient) Submit(ctx context.Context, req *Request) (string, error) {
	payload := map[string]any{"prompt": req.Prompt}
	for k, v := range req.Params {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal kling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos/text2video", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build kling request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("kling submit: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("kling submit: %w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("kling submit rejected: status %d", resp.StatusCode)
	}

	var klingResp klingResponse
	if err := json.NewDecoder(resp.Body).Decode(&klingResp); err != nil {
		return "", fmt.Errorf("failed to decode kling response: %w", err)
	}
	if klingResp.Code != 0 {
		return "", fmt.Errorf("kling submit rejected: code %d: %s", klingResp.Code, klingResp.Message)
	}
	if klingResp.Data.TaskID == "" {
		return "", fmt.Errorf("kling submit returned empty task id")
	}

	return klingResp.Data.TaskID, nil
}

// GetStatus queries Kling for a task and maps its status vocabulary onto the
// normalized TaskStatus
func (c *KlingClient) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/videos/text2video/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build kling status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kling status: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kling status: %w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var klingResp klingResponse
	if err := json.NewDecoder(resp.Body).Decode(&klingResp); err != nil {
		return nil, fmt.Errorf("failed to decode kling status: %w", err)
	}
	if klingResp.Code != 0 {
		return nil, fmt.Errorf("kling status failed: code %d: %s", klingResp.Code, klingResp.Message)
	}

	status := &TaskStatus{}
	switch klingResp.Data.TaskStatus {
	case "submitted":
		status.State = StatePending
	case "processing":
		status.State = StateProcessing
	case "succeed":
		status.State = StateCompleted
		if len(klingResp.Data.TaskResult.Videos) > 0 {
			status.ResultURI = klingResp.Data.TaskResult.Videos[0].URL
		}
	case "failed":
		status.State = StateFailed
		status.ErrorMessage = klingResp.Data.TaskMsg
	default:
		return nil, fmt.Errorf("kling returned unknown status %q", klingResp.Data.TaskStatus)
	}

	return status, nil
}

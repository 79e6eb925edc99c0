package manus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/payperwork/payperwork/internal/protocol"
)

// Client talks to the external task API that runs long-lived presentation
// generation jobs. The API is treated as an opaque, fallible remote service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the task API.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type createTaskRequest struct {
	Prompt     string `json:"prompt"`
	TaskType   string `json:"task_type"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error,omitempty"`
}

// CreateTask dispatches a generation job and returns the external task id.
func (c *Client) CreateTask(ctx context.Context, prompt, webhookURL string) (string, error) {
	body, err := json.Marshal(createTaskRequest{
		Prompt:     prompt,
		TaskType:   "slides",
		WebhookURL: webhookURL,
	})
	if err != nil {
		return "", fmt.Errorf("marshal create task: %w", err)
	}

	data, err := c.post(ctx, "/v1/tasks", body)
	if err != nil {
		return "", err
	}

	var parsed createTaskResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse create task response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("task API error: %s", parsed.Error)
	}
	if parsed.TaskID == "" {
		return "", fmt.Errorf("task API returned no task id")
	}
	return parsed.TaskID, nil
}

// GetTask polls a task's status. The response reuses the webhook event shape
// so the poller can feed the same completion path the webhook uses.
func (c *Client) GetTask(ctx context.Context, taskID string) (*protocol.TaskEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("build get task request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read get task response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("task API returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var event protocol.TaskEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parse task status: %w", err)
	}
	if event.TaskID == "" {
		event.TaskID = taskID
	}
	return &event, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task API request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("task API returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

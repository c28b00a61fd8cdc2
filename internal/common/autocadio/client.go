// internal/common/autocadio/client.go
package autocadio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cadio-client/internal/common/errors"
)

// Doer sends HTTP requests. The authenticated session client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Design Automation REST surface.
type Client struct {
	baseURL string
	session Doer
}

func NewClient(baseURL string, session Doer) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, session: session}
}

// GetActivity looks up an activity by id. A missing activity returns found=false and no error.
func (c *Client) GetActivity(ctx context.Context, id string) (*Activity, bool, error) {
	var activity Activity
	status, err := c.do(ctx, "get activity", http.MethodGet, entityPath("Activities", id), nil, &activity, http.StatusNotFound)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	return &activity, true, nil
}

// CreateActivity inserts a new activity.
func (c *Client) CreateActivity(ctx context.Context, activity *Activity) (*Activity, error) {
	var created Activity
	status, err := c.do(ctx, "create activity", http.MethodPost, "Activities", activity, &created)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || created.Id == "" {
		return activity, nil
	}
	return &created, nil
}

// UpdateActivity overwrites an existing activity.
func (c *Client) UpdateActivity(ctx context.Context, activity *Activity) error {
	_, err := c.do(ctx, "update activity", http.MethodPatch, entityPath("Activities", activity.Id), activity, nil)
	return err
}

// ListVersions returns the stored versions of an activity.
func (c *Client) ListVersions(ctx context.Context, id string) ([]ActivityVersion, error) {
	var result struct {
		Value []ActivityVersion `json:"value"`
	}
	if _, err := c.do(ctx, "list activity versions", http.MethodGet, entityPath("Activities", id)+"/Operations.GetVersions()", nil, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// SetVersion makes version the current version of an activity.
func (c *Client) SetVersion(ctx context.Context, id string, version int) error {
	body := map[string]int{"Version": version}
	_, err := c.do(ctx, "set activity version", http.MethodPost, entityPath("Activities", id)+"/Operations.SetVersion", body, nil)
	return err
}

// SubmitWorkItem posts a work item and returns it with the server-assigned Id.
func (c *Client) SubmitWorkItem(ctx context.Context, item *WorkItem) (*WorkItem, error) {
	var created WorkItem
	if _, err := c.do(ctx, "submit work item", http.MethodPost, "WorkItems", item, &created); err != nil {
		return nil, err
	}
	if created.Id == "" {
		return nil, errors.NewAPIError("submit work item", http.StatusCreated, "response did not include a work item id")
	}
	return &created, nil
}

// GetWorkItemStatus fetches only the status property of a work item.
func (c *Client) GetWorkItemStatus(ctx context.Context, id string) (ExecutionStatus, error) {
	var result struct {
		Value ExecutionStatus `json:"value"`
	}
	if _, err := c.do(ctx, "get work item status", http.MethodGet, entityPath("WorkItems", id)+"/Status", nil, &result); err != nil {
		return "", err
	}
	return result.Value, nil
}

// GetWorkItem fetches the full work item.
func (c *Client) GetWorkItem(ctx context.Context, id string) (*WorkItem, error) {
	var item WorkItem
	if _, err := c.do(ctx, "get work item", http.MethodGet, entityPath("WorkItems", id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// entityPath renders an OData key segment such as Activities('TestImport').
func entityPath(set, id string) string {
	return fmt.Sprintf("%s('%s')", set, url.PathEscape(strings.ReplaceAll(id, "'", "''")))
}

// do sends one request. Statuses listed in allowed are returned without an error and without decoding.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}, allowed ...int) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal %s request: %w", operation, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return 0, errors.NewNetworkError(operation, err)
	}
	defer resp.Body.Close()

	for _, status := range allowed {
		if resp.StatusCode == status {
			return resp.StatusCode, nil
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.NewNetworkError(operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, errors.NewAPIUnauthorizedError(fmt.Sprintf("%s: status %d: %s", operation, resp.StatusCode, string(respBody)))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, errors.NewAPIError(operation, resp.StatusCode, string(respBody))
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.StatusCode, errors.NewAPIError(operation, resp.StatusCode, fmt.Sprintf("undecodable response: %v", err))
		}
	}
	return resp.StatusCode, nil
}

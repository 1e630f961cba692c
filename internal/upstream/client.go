// Package upstream is the REST client for the support backend: snapshot
// polls, mutation commands, and the aggregate stats endpoint.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-console/internal/model"
)

// HTTPError is a non-2xx response with the best human-readable reason the
// body offered: a JSON "message" or "error" field, else the raw text body,
// else a generic status-code message.
type HTTPError struct {
	StatusCode int
	Reason     string
}

func (e *HTTPError) Error() string {
	return e.Reason
}

// Client talks to the upstream support backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for the backend at baseURL authenticating with
// the given bearer token.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// FetchSnapshot pulls the current conversation listing. The listing may be
// partial or paginated; callers must not treat an absent row as a deletion.
func (c *Client) FetchSnapshot(ctx context.Context) ([]model.RawConversation, error) {
	var out struct {
		Chats []model.RawConversation `json:"chats"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/chats", nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

// FetchStats pulls the display-only aggregate summary.
func (c *Client) FetchStats(ctx context.Context) (model.Stats, error) {
	var out model.Stats
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/chats/stats", nil, &out)
	return out, err
}

// AssignConversation sets the assignee for a conversation. An empty
// assigneeID unassigns it.
func (c *Client) AssignConversation(ctx context.Context, conversationID, assigneeID string) error {
	body := map[string]string{"assigneeId": assigneeID}
	return c.doJSON(ctx, http.MethodPut, c.chatPath(conversationID, "assign"), body, nil)
}

// UpdateStatus sets the status for a conversation.
func (c *Client) UpdateStatus(ctx context.Context, conversationID string, status model.Status) error {
	body := map[string]string{"status": string(status)}
	return c.doJSON(ctx, http.MethodPut, c.chatPath(conversationID, "status"), body, nil)
}

// DeleteConversation requests deletion of a conversation. The intent is
// idempotent on the server; the caller owns the client-side timeout.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodDelete, c.chatPath(conversationID, ""), nil, nil)
}

func (c *Client) chatPath(conversationID, suffix string) string {
	p := "/api/admin/chats/" + url.PathEscape(conversationID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		return json.Unmarshal(payload, out)
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Reason:     extractReason(resp.StatusCode, payload),
	}
}

// extractReason pulls a human-readable failure reason out of an error
// response body.
func extractReason(status int, payload []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if text := strings.TrimSpace(string(payload)); text != "" && !strings.HasPrefix(text, "{") {
		return text
	}
	return fmt.Sprintf("request failed with status code %d", status)
}

package autopay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/mcpay/types"
)

// Client talks to the conversation API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// MessageResult is the server's reply to a posted message.
type MessageResult struct {
	Message  types.Message  `json:"message"`
	Response string         `json:"response"`
	Context  *types.Context `json:"context"`
}

// ToolCatalog is the discovery payload from GET /tools.
type ToolCatalog struct {
	Tools map[string]types.ToolDescriptor `json:"tools"`
	Usage string                          `json:"usage"`
}

type createContextResponse struct {
	ContextID string         `json:"contextId"`
	Context   *types.Context `json:"context"`
}

// CreateContext opens a new conversation and returns its id.
func (c *Client) CreateContext(ctx context.Context, metadata map[string]any) (string, error) {
	var out createContextResponse
	err := c.do(ctx, http.MethodPost, "/context", map[string]any{"metadata": metadata}, &out)
	if err != nil {
		return "", err
	}
	return out.ContextID, nil
}

// GetContext fetches the full conversation state.
func (c *Client) GetContext(ctx context.Context, contextID string) (*types.Context, error) {
	var out struct {
		Context *types.Context `json:"context"`
	}
	err := c.do(ctx, http.MethodGet, "/context/"+contextID, nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Context, nil
}

// SendMessage posts a user message and returns the server's reply.
func (c *Client) SendMessage(ctx context.Context, contextID, content string) (*MessageResult, error) {
	var out MessageResult
	err := c.do(ctx, http.MethodPost, "/context/"+contextID+"/message", map[string]any{
		"role":    string(types.RoleUser),
		"content": content,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Tools fetches the tool discovery catalog.
func (c *Client) Tools(ctx context.Context) (*ToolCatalog, error) {
	var out ToolCatalog
	if err := c.do(ctx, http.MethodGet, "/tools", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var wrapper struct {
			Error types.Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wrapper); err == nil && wrapper.Error.Code != "" {
			return wrapper.Error
		}
		return fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient calls a remote MCP server through its /message endpoint
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
	log    *logrus.Logger
	nextID atomic.Int64
}

// NewHTTPClient creates a client for the JSON-RPC endpoint at url
func NewHTTPClient(url, apiKey string, timeout time.Duration, log *logrus.Logger) *HTTPClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPClient{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// CallTool implements Client
func (c *HTTPClient) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse {
	if args == nil {
		args = map[string]interface{}{}
	}
	resp, err := c.post(ctx, "tools/call", ToolCallParams{Name: name, Arguments: args})
	if err != nil {
		c.log.WithError(err).WithField("tool", name).Error("MCPClient: tool call failed")
		return failure(ErrCodeUnavailable, err)
	}
	return decodeToolCall(resp)
}

// ListTools implements Client
func (c *HTTPClient) ListTools(ctx context.Context) ([]Tool, error) {
	resp, err := c.post(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeToolsList(resp)
}

// Close implements Client
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) post(ctx context.Context, method string, params interface{}) (*Response, error) {
	req := Request{
		JSONRPC: jsonRPCVersion,
		ID:      json.RawMessage(strconv.FormatInt(c.nextID.Add(1), 10)),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach mcp server: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("mcp server returned status %d: %s", httpResp.StatusCode, bytes.TrimSpace(msg))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode mcp response: %w", err)
	}
	return &resp, nil
}

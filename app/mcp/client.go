package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client dispatches tool calls to an MCP server over some transport
type Client interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse
	ListTools(ctx context.Context) ([]Tool, error)
	Close() error
}

// InProcessClient calls the server directly without serialization
type InProcessClient struct {
	server *MCPServer
}

// NewInProcessClient creates a client bound to server
func NewInProcessClient(server *MCPServer) *InProcessClient {
	return &InProcessClient{server: server}
}

// CallTool implements Client
func (c *InProcessClient) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse {
	return c.server.CallTool(ctx, name, args)
}

// ListTools implements Client
func (c *InProcessClient) ListTools(ctx context.Context) ([]Tool, error) {
	return c.server.Tools(), nil
}

// Close implements Client
func (c *InProcessClient) Close() error {
	return nil
}

// decodeToolCall turns a tools/call JSON-RPC response into a ToolResponse
func decodeToolCall(resp *Response) ToolResponse {
	if resp.Error != nil {
		code := ErrCodeInternal
		switch resp.Error.Code {
		case CodeInvalidParams:
			code = ErrCodeInvalidArgument
		case CodeMethodNotFound:
			code = ErrCodeUnknownTool
		}
		return failure(code, resp.Error)
	}

	var result ToolCallResult
	dec := json.NewDecoder(strings.NewReader(string(resp.Result)))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return failure(ErrCodeInternal, fmt.Errorf("invalid tools/call result: %w", err))
	}
	return fromCallResult(result)
}

// decodeToolsList extracts the tools from a tools/list response
func decodeToolsList(resp *Response) ([]Tool, error) {
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("invalid tools/list result: %w", err)
	}
	return result.Tools, nil
}

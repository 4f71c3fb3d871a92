package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SmartIMS/app/models"
)

// Protocol constants
const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "SmartIMS-MCP-Server"
	ServerVersion   = "1.0.0"
	jsonRPCVersion  = "2.0"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrorCode classifies a failed tool call so callers can react without
// parsing messages
type ErrorCode string

// Tool error codes
const (
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeNotFound        ErrorCode = "not_found"
	ErrCodeReadOnly        ErrorCode = "read_only"
	ErrCodeDisabled        ErrorCode = "disabled"
	ErrCodeUnknownTool     ErrorCode = "unknown_tool"
	ErrCodeUnavailable     ErrorCode = "unavailable"
	ErrCodeInternal        ErrorCode = "internal"
)

// Request is a JSON-RPC 2.0 request or notification (no id)
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Tool describes one callable tool for tools/list
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolCallParams are the params of tools/call
type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Content is one MCP content block
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolCallResult is the result of tools/call
type ToolCallResult struct {
	Content []Content              `json:"content"`
	IsError bool                   `json:"isError,omitempty"`
	Meta    map[string]interface{} `json:"_meta,omitempty"`
}

// ToolResponse is the outcome of a dispatched tool call: Result on success,
// Error and Code on failure
type ToolResponse struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    ErrorCode   `json:"code,omitempty"`
}

// Decode converts Result into v, which lets in-process and remote results be
// read the same way
func (r ToolResponse) Decode(v interface{}) error {
	if !r.Success {
		return fmt.Errorf("tool call failed: %s", r.Error)
	}
	raw, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to encode tool result: %w", err)
	}
	return json.Unmarshal(raw, v)
}

func success(result interface{}) ToolResponse {
	return ToolResponse{Success: true, Result: result}
}

func failure(code ErrorCode, err error) ToolResponse {
	return ToolResponse{Success: false, Error: err.Error(), Code: code}
}

// codeFor maps domain errors to tool error codes
func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, models.ErrInvalidArgument):
		return ErrCodeInvalidArgument
	case errors.Is(err, models.ErrReadOnly):
		return ErrCodeReadOnly
	default:
		return ErrCodeInternal
	}
}

// toCallResult renders a ToolResponse as MCP content
func toCallResult(resp ToolResponse) ToolCallResult {
	if !resp.Success {
		return ToolCallResult{
			Content: []Content{{Type: "text", Text: "Error: " + resp.Error}},
			IsError: true,
			Meta:    map[string]interface{}{"errorCode": string(resp.Code)},
		}
	}
	text, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		return ToolCallResult{
			Content: []Content{{Type: "text", Text: "Error: failed to encode result: " + err.Error()}},
			IsError: true,
			Meta:    map[string]interface{}{"errorCode": string(ErrCodeInternal)},
		}
	}
	return ToolCallResult{Content: []Content{{Type: "text", Text: string(text)}}}
}

// fromCallResult is the inverse of toCallResult
func fromCallResult(result ToolCallResult) ToolResponse {
	var text strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	if result.IsError {
		code := ErrCodeInternal
		if v, ok := result.Meta["errorCode"].(string); ok && v != "" {
			code = ErrorCode(v)
		}
		return ToolResponse{
			Success: false,
			Error:   strings.TrimPrefix(text.String(), "Error: "),
			Code:    code,
		}
	}

	var value interface{}
	dec := json.NewDecoder(bytes.NewReader([]byte(text.String())))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		// plain-text results from other servers are passed through
		return ToolResponse{Success: true, Result: text.String()}
	}
	return ToolResponse{Success: true, Result: value}
}

func newResponse(id json.RawMessage, result interface{}) *Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return newErrorResponse(id, CodeInternalError, err.Error())
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: normalizeID(id), Result: raw}
}

func newErrorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      normalizeID(id),
		Error:   &RPCError{Code: code, Message: message},
	}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

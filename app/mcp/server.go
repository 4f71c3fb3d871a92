package mcp

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"SmartIMS/app/config"
	"SmartIMS/app/llm"
	"SmartIMS/app/metrics"
	"SmartIMS/app/models"
	"SmartIMS/app/sqlcheck"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	errUnknownTool = errors.New("unknown tool")
	errUnavailable = errors.New("service not available")
)

// maxMessageSize bounds one newline-delimited JSON-RPC message on stdio
const maxMessageSize = 4 << 20

// MCPServer dispatches tool calls and speaks JSON-RPC over HTTP or stdio
type MCPServer struct {
	httpServer    *http.Server
	port          int
	apiKey        string
	allowedIPs    []string
	trustProxy    bool
	readOnlyMode  bool
	disabledTools []string
	isRunning     bool
	mu            sync.RWMutex

	sessions   map[string]*sseClient
	sessionsMu sync.RWMutex

	log  *logrus.Logger
	deps *ServiceDependencies
}

// ServiceDependencies holds references to all services needed by MCP tools
type ServiceDependencies struct {
	Inventory  InventoryServiceInterface
	Query      QueryServiceInterface
	Translator llm.Translator
	// Events is optional; it receives every successful inventory change
	Events EventPublisher
}

// InventoryServiceInterface defines methods needed from InventoryService
type InventoryServiceInterface interface {
	LowStock(ctx context.Context, warehouseID *uint) ([]models.LowStockItem, error)
	Summary(ctx context.Context) ([]models.InventorySummaryRow, error)
	AddInventory(ctx context.Context, productID, warehouseID uint, quantity int) (*models.InventoryLevel, error)
}

// QueryServiceInterface defines methods needed from QueryService
type QueryServiceInterface interface {
	ExecuteSQL(ctx context.Context, statement string) ([]map[string]interface{}, error)
}

// EventPublisher is notified about stock changes
type EventPublisher interface {
	PublishInventoryChange(level models.InventoryLevel)
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(cfg config.MCPConfig, deps *ServiceDependencies, log *logrus.Logger) *MCPServer {
	if deps == nil {
		deps = &ServiceDependencies{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MCPServer{
		port:          cfg.Port,
		apiKey:        cfg.APIKey,
		allowedIPs:    cfg.AllowedIPList(),
		trustProxy:    cfg.TrustProxyHeaders,
		readOnlyMode:  cfg.ReadOnly,
		disabledTools: cfg.DisabledToolList(),
		sessions:      make(map[string]*sseClient),
		log:           log,
		deps:          deps,
	}
}

// ReadOnly reports whether write operations are rejected
func (s *MCPServer) ReadOnly() bool {
	return s.readOnlyMode
}

// Start starts the HTTP transport in the background
func (s *MCPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("server already running")
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Infof("MCP Server starting on port %d", s.port)
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("MCP Server error")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop stops the HTTP transport
func (s *MCPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}

	s.isRunning = false
	s.log.Info("MCP Server stopped")
	return nil
}

// IsRunning returns whether the server is running
func (s *MCPServer) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the HTTP handler with middleware
func (s *MCPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    "ok",
			"server":    ServerName,
			"version":   ServerVersion,
			"read_only": s.readOnlyMode,
		})
	})

	// SSE session (GET) or streamable HTTP (POST)
	mux.HandleFunc("/sse", s.handleSSE)

	// JSON-RPC over HTTP POST
	mux.HandleFunc("/message", s.handleMessage)

	return s.authMiddleware(s.corsMiddleware(mux))
}

// corsMiddleware adds CORS headers
func (s *MCPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware handles API key and IP validation
func (s *MCPServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiKey != "" && !s.checkAPIKey(requestAPIKey(r)) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if len(s.allowedIPs) > 0 {
			clientIP := getClientIP(r, s.trustProxy)
			allowed := false
			for _, ip := range s.allowedIPs {
				if ip == clientIP || ip == "*" {
					allowed = true
					break
				}
			}
			if !allowed {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkAPIKey accepts the configured key verbatim or, when it is a bcrypt
// hash, any key matching the hash
func (s *MCPServer) checkAPIKey(key string) bool {
	if key == "" {
		return false
	}
	if strings.HasPrefix(s.apiKey, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(s.apiKey), []byte(key)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.apiKey), []byte(key)) == 1
}

func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("api_key")
}

// sseClient is one open SSE session
type sseClient struct {
	id       string
	messages chan []byte
	done     chan struct{}
}

// handleSSE handles both SSE connections (GET) and Streamable HTTP transport (POST)
func (s *MCPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handleStreamableHTTP(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		id:       uuid.NewString(),
		messages: make(chan []byte, 100),
		done:     make(chan struct{}),
	}

	s.sessionsMu.Lock()
	s.sessions[client.id] = client
	s.sessionsMu.Unlock()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, client.id)
		s.sessionsMu.Unlock()
		close(client.done)
	}()

	// The endpoint event tells the client where to POST messages
	messageURL := fmt.Sprintf("/message?session=%s", client.id)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", messageURL)
	flusher.Flush()

	s.log.WithField("session", client.id).Info("MCP SSE client connected")

	for {
		select {
		case msg := <-client.messages:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", string(msg))
			flusher.Flush()
		case <-r.Context().Done():
			s.log.WithField("session", client.id).Info("MCP SSE client disconnected")
			return
		}
	}
}

// handleStreamableHTTP answers a JSON-RPC request in the response body
func (s *MCPServer) handleStreamableHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	reply := s.HandleMessage(r.Context(), body)
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// handleMessage handles JSON-RPC messages, echoing the reply to the SSE
// session named by ?session= when there is one
func (s *MCPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}

	reply := s.HandleMessage(r.Context(), body)
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		s.sessionsMu.RLock()
		client, exists := s.sessions[sessionID]
		s.sessionsMu.RUnlock()

		if exists {
			select {
			case client.messages <- reply:
			case <-client.done:
			default:
				s.log.WithField("session", sessionID).Warn("MCP: failed to queue SSE response (channel full)")
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(reply)
}

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes one
// response line per request to out. Requests are handled concurrently; it
// returns when in is exhausted and every reply has been written.
func (s *MCPServer) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg := []byte(line)

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := s.HandleMessage(ctx, msg)
			if reply == nil {
				return
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			if _, err := out.Write(append(reply, '\n')); err != nil {
				s.log.WithError(err).Error("MCP: failed to write stdio response")
			}
		}()
	}

	wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	return nil
}

// HandleMessage decodes one JSON-RPC message and returns the encoded
// response, or nil for notifications
func (s *MCPServer) HandleMessage(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return mustMarshal(newErrorResponse(nil, CodeParseError, "Parse error"))
	}

	resp := s.Handle(ctx, &req)
	if resp == nil {
		return nil
	}
	return mustMarshal(resp)
}

// Handle processes one JSON-RPC request. Notifications yield nil.
func (s *MCPServer) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.log.WithField("method", req.Method).Debug("MCP: ignoring request without id")
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.ID)
	case "ping":
		return newResponse(req.ID, map[string]interface{}{})
	case "tools/list":
		return s.handleToolsList(req.ID)
	case "tools/call":
		return s.handleToolCall(ctx, req.ID, req.Params)
	default:
		return newErrorResponse(req.ID, CodeMethodNotFound, "Method not found")
	}
}

// handleInitialize handles the initialize request
func (s *MCPServer) handleInitialize(id json.RawMessage) *Response {
	return newResponse(id, map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
	})
}

// handleToolsList handles the tools/list request
func (s *MCPServer) handleToolsList(id json.RawMessage) *Response {
	return newResponse(id, map[string]interface{}{
		"tools": s.Tools(),
	})
}

// handleToolCall handles tool execution
func (s *MCPServer) handleToolCall(ctx context.Context, id json.RawMessage, rawParams json.RawMessage) *Response {
	var params ToolCallParams
	if len(rawParams) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(rawParams)))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return newErrorResponse(id, CodeInvalidParams, "Invalid params: "+err.Error())
		}
	}
	if params.Name == "" {
		return newErrorResponse(id, CodeInvalidParams, "Invalid params: tool name is required")
	}

	resp := s.CallTool(ctx, params.Name, params.Arguments)
	return newResponse(id, toCallResult(resp))
}

// Tools returns the enabled tool definitions
func (s *MCPServer) Tools() []Tool {
	var enabled []Tool
	for _, tool := range getToolDefinitions() {
		if !s.isToolDisabled(tool.Name) {
			enabled = append(enabled, tool)
		}
	}
	return enabled
}

// CallTool runs a tool after the disabled and read-only checks
func (s *MCPServer) CallTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse {
	start := time.Now()
	resp := s.callTool(ctx, name, args)

	metrics.RecordToolCall(name, resp.Success)
	entry := s.log.WithFields(logrus.Fields{
		"tool":     name,
		"success":  resp.Success,
		"duration": time.Since(start).String(),
	})
	if resp.Success {
		entry.Info("MCP tool call")
	} else {
		entry.WithField("code", resp.Code).Warn("MCP tool call failed: " + resp.Error)
	}
	return resp
}

func (s *MCPServer) callTool(ctx context.Context, name string, args map[string]interface{}) ToolResponse {
	if args == nil {
		args = map[string]interface{}{}
	}

	if s.isToolDisabled(name) {
		return failure(ErrCodeDisabled, fmt.Errorf("tool '%s' is disabled", name))
	}

	if s.readOnlyMode && s.isWriteCall(name, args) {
		return failure(ErrCodeReadOnly, errors.New("server is in read-only mode, write operations are not allowed"))
	}

	result, err := s.executeTool(ctx, name, args)
	if err != nil {
		switch {
		case errors.Is(err, errUnknownTool):
			return failure(ErrCodeUnknownTool, err)
		case errors.Is(err, errUnavailable):
			return failure(ErrCodeUnavailable, err)
		default:
			return failure(codeFor(err), err)
		}
	}
	return success(result)
}

// isToolDisabled checks if a tool is disabled
func (s *MCPServer) isToolDisabled(toolName string) bool {
	for _, disabled := range s.disabledTools {
		if disabled == toolName {
			return true
		}
	}
	return false
}

// isWriteCall reports whether a call would modify data. Raw SQL is inspected
// statement by statement.
func (s *MCPServer) isWriteCall(name string, args map[string]interface{}) bool {
	if name == "execute_sql_query" {
		statement, _ := args["sql"].(string)
		return sqlcheck.Statements(statement) > 1 || !sqlcheck.IsReadOnly(statement)
	}
	return isWriteOperation(name)
}

// isWriteOperation checks if a tool performs write operations
func isWriteOperation(toolName string) bool {
	writeOps := []string{
		"create_", "update_", "delete_", "adjust_", "add_", "remove_",
	}
	for _, prefix := range writeOps {
		if strings.HasPrefix(toolName, prefix) {
			return true
		}
	}
	return false
}

// getClientIP extracts client IP from request. Forwarding headers are only
// read when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			return strings.TrimSpace(ips[0])
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AllTools returns every tool definition, disabled ones included
func AllTools() []Tool {
	return getToolDefinitions()
}

// MayWrite reports whether a tool can modify data. execute_sql_query counts
// because it accepts any statement.
func MayWrite(name string) bool {
	return name == "execute_sql_query" || isWriteOperation(name)
}

// getToolDefinitions returns all tool definitions for the MCP protocol
func getToolDefinitions() []Tool {
	tools := []Tool{}
	tools = append(tools, getQueryTools()...)
	tools = append(tools, getSchemaTools()...)
	tools = append(tools, getInventoryTools()...)
	return tools
}

// executeTool executes a tool by name
func (s *MCPServer) executeTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case "execute_sql_query", "text_to_sql":
		return executeQueryTool(ctx, s.deps.Query, s.deps.Translator, name, args)

	case "get_database_schema":
		return executeSchemaTool(name)

	case "get_low_stock_items", "get_inventory_summary", "add_inventory":
		return executeInventoryTool(ctx, s.deps.Inventory, s.deps.Events, name, args)

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownTool, name)
	}
}

func mustMarshal(resp *Response) []byte {
	raw, err := json.Marshal(resp)
	if err != nil {
		raw, _ = json.Marshal(newErrorResponse(resp.ID, CodeInternalError, err.Error()))
	}
	return raw
}

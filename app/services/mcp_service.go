package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"SmartIMS/app/config"
	"SmartIMS/app/mcp"

	"github.com/sirupsen/logrus"
)

// MCPService owns the MCP server and the client the API dispatches through
type MCPService struct {
	cfg    config.MCPConfig
	deps   *mcp.ServiceDependencies
	log    *logrus.Logger
	server *mcp.MCPServer
	client mcp.Client
	mu     sync.RWMutex
}

var _ mcp.Client = (*MCPService)(nil)

// ToolInfo is one entry of the tool catalog shown by the API
type ToolInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Write       bool   `json:"write"`
}

// NewMCPService creates the server from cfg and the client selected by
// cfg.Transport
func NewMCPService(cfg config.MCPConfig, deps *mcp.ServiceDependencies, log *logrus.Logger) (*MCPService, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	svc := &MCPService{
		cfg:    cfg,
		deps:   deps,
		log:    log,
		server: mcp.NewMCPServer(cfg, deps, log),
	}

	client, err := svc.newClient()
	if err != nil {
		return nil, err
	}
	svc.client = client
	return svc, nil
}

func (s *MCPService) newClient() (mcp.Client, error) {
	switch s.cfg.Transport {
	case "", "inprocess":
		return mcp.NewInProcessClient(s.server), nil

	case "stdio":
		command := strings.Fields(s.cfg.Command)
		if len(command) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("could not locate executable for MCP stdio server: %w", err)
			}
			command = []string{exe, "mcp-server"}
		}
		return mcp.NewStdioClient(mcp.StdioClientConfig{
			Command: command[0],
			Args:    command[1:],
			Timeout: s.cfg.CallTimeout,
		}, s.log), nil

	case "http":
		key := s.cfg.ClientKey
		if key == "" {
			key = s.cfg.APIKey
		}
		return mcp.NewHTTPClient(s.cfg.URL, key, s.cfg.CallTimeout, s.log), nil

	default:
		return nil, fmt.Errorf("unsupported MCP transport %q", s.cfg.Transport)
	}
}

// Client returns the client tool calls are dispatched through
func (s *MCPService) Client() mcp.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// CallTool dispatches through the current client, so callers keep working
// after UpdateDisabledTools swaps it
func (s *MCPService) CallTool(ctx context.Context, name string, args map[string]interface{}) mcp.ToolResponse {
	return s.Client().CallTool(ctx, name, args)
}

// ListTools lists the tools of the current client
func (s *MCPService) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	return s.Client().ListTools(ctx)
}

// Close closes the current client
func (s *MCPService) Close() error {
	return s.Client().Close()
}

// Server returns the local MCP server
func (s *MCPService) Server() *mcp.MCPServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

// InProcess reports whether tool calls run in this process. Otherwise side
// effects such as inventory events happen in the remote server.
func (s *MCPService) InProcess() bool {
	return s.cfg.Transport == "" || s.cfg.Transport == "inprocess"
}

// Start starts the HTTP transport when it is enabled
func (s *MCPService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.HTTPEnabled {
		return nil
	}
	if s.server.IsRunning() {
		return fmt.Errorf("server already running")
	}
	if err := s.server.Start(); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"port":      s.cfg.Port,
		"read_only": s.cfg.ReadOnly,
	}).Info("MCP HTTP transport started")
	return nil
}

// Stop stops the HTTP transport and closes the client
func (s *MCPService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.server.Stop(ctx); err != nil {
		firstErr = err
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UpdateDisabledTools replaces the disabled tool list, restarting the HTTP
// transport when it is running
func (s *MCPService) UpdateDisabledTools(ctx context.Context, disabled string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.server.IsRunning()
	if wasRunning {
		if err := s.server.Stop(ctx); err != nil {
			return fmt.Errorf("could not stop MCP server: %w", err)
		}
	}

	s.cfg.DisabledTools = disabled
	s.server = mcp.NewMCPServer(s.cfg, s.deps, s.log)
	if s.InProcess() {
		s.client = mcp.NewInProcessClient(s.server)
	}

	if wasRunning {
		if err := s.server.Start(); err != nil {
			return fmt.Errorf("configuration saved but server restart failed: %w", err)
		}
		s.log.Info("MCP: server restarted with updated disabled tools")
	}
	return nil
}

// GetStatus returns the current server status
func (s *MCPService) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"transport":      s.transportName(),
		"http_running":   s.server.IsRunning(),
		"port":           s.cfg.Port,
		"api_key_set":    s.cfg.APIKey != "",
		"read_only_mode": s.cfg.ReadOnly,
		"disabled_tools": s.cfg.DisabledToolList(),
	}
}

func (s *MCPService) transportName() string {
	if s.InProcess() {
		return "inprocess"
	}
	return s.cfg.Transport
}

// toolCategories groups the tools for display
var toolCategories = map[string]string{
	"execute_sql_query":     "Query",
	"text_to_sql":           "Query",
	"get_database_schema":   "Schema",
	"get_low_stock_items":   "Inventory",
	"get_inventory_summary": "Inventory",
	"add_inventory":         "Inventory",
}

// GetAvailableTools returns every tool the server knows with its enabled status
func (s *MCPService) GetAvailableTools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled := map[string]bool{}
	for _, tool := range s.server.Tools() {
		enabled[tool.Name] = true
	}

	all := mcp.AllTools()
	result := make([]ToolInfo, 0, len(all))
	for _, tool := range all {
		result = append(result, ToolInfo{
			Name:        tool.Name,
			Category:    toolCategories[tool.Name],
			Description: tool.Description,
			Enabled:     enabled[tool.Name],
			Write:       mcp.MayWrite(tool.Name),
		})
	}
	return result
}
